package editor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"
)

// newCaptureClient returns a client whose notifications are written
// into buf.
func newCaptureClient(buf *bytes.Buffer, opts ...ClientOption) *Client {
	tr := NewTransport(bytes.NewReader(nil), buf, nil)
	return NewClient(tr, opts...)
}

// decodeFrames parses every framed notification in buf.
func decodeFrames(t *testing.T, buf *bytes.Buffer) []Request {
	t.Helper()
	r := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	var reqs []Request
	for {
		raw, err := func() (json.RawMessage, error) {
			tr := &Transport{reader: r}
			return tr.readMessage()
		}()
		if err != nil {
			if err == io.EOF {
				break
			}
			break
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func TestPopupShowPayload(t *testing.T) {
	var buf bytes.Buffer
	c := newCaptureClient(&buf)

	items := []Item{{Word: "foo", Abbr: "foo", Kind: "F"}}
	if err := c.PopupShow(4, items, 0); err != nil {
		t.Fatal(err)
	}

	reqs := decodeFrames(t, &buf)
	if len(reqs) != 1 {
		t.Fatalf("got %d frames, want 1", len(reqs))
	}
	if reqs[0].Method != "popup_show" {
		t.Errorf("method = %q", reqs[0].Method)
	}
	if reqs[0].ID != 0 {
		t.Error("popup_show must be a notification, not a request")
	}

	params, _ := json.Marshal(reqs[0].Params)
	var p struct {
		Col       int    `json:"col"`
		Items     []Item `json:"items"`
		Preselect int    `json:"preselect"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		t.Fatal(err)
	}
	if p.Col != 4 || len(p.Items) != 1 || p.Items[0].Word != "foo" {
		t.Errorf("unexpected params: %+v", p)
	}
}

func TestBatchFlushSingleNotification(t *testing.T) {
	var buf bytes.Buffer
	c := newCaptureClient(&buf)

	b := c.NewBatch()
	b.PopupHide().ClearCandidates().SetCompleteOpt("menuone,noselect").UnmapNumberSelect().FloatClose()
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	reqs := decodeFrames(t, &buf)
	if len(reqs) != 1 {
		t.Fatalf("batch must flush as one notification, got %d", len(reqs))
	}
	if reqs[0].Method != "batch" {
		t.Errorf("method = %q", reqs[0].Method)
	}

	params, _ := json.Marshal(reqs[0].Params)
	var p struct {
		Calls []call `json:"calls"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{"popup_hide", "set_candidates", "set_completeopt", "unmap_number_select", "float_close"}
	if len(p.Calls) != len(wantOrder) {
		t.Fatalf("got %d calls, want %d", len(p.Calls), len(wantOrder))
	}
	for i, w := range wantOrder {
		if p.Calls[i].Method != w {
			t.Errorf("call %d = %q, want %q", i, p.Calls[i].Method, w)
		}
	}
}

func TestBatchFlushEmptySendsNothing(t *testing.T) {
	var buf bytes.Buffer
	c := newCaptureClient(&buf)

	if err := c.NewBatch().Flush(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty batch wrote %d bytes", buf.Len())
	}
}

func TestBatchFlushResets(t *testing.T) {
	var buf bytes.Buffer
	c := newCaptureClient(&buf)

	b := c.NewBatch()
	b.PopupHide()
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	if got := len(decodeFrames(t, &buf)); got != 1 {
		t.Errorf("second flush resent calls: %d frames", got)
	}
}

func TestClientPlatform(t *testing.T) {
	var buf bytes.Buffer
	c := newCaptureClient(&buf, WithPlatform(PlatformLegacy))
	if c.Platform() != PlatformLegacy {
		t.Error("platform option not applied")
	}
	if newCaptureClient(&buf).Platform() != PlatformNative {
		t.Error("default platform should be native")
	}
}

func TestBindHandlerDecodes(t *testing.T) {
	inR, inW := io.Pipe()
	tr := NewTransport(inR, io.Discard, nil)

	rec := &recordingHandler{seen: make(chan string, 16)}
	BindHandler(tr, rec)
	tr.Start(context.Background())
	defer tr.Close()

	events := []any{
		Request{JSONRPC: "2.0", Method: MethodInsertCharPre, Params: InsertCharPreParams{Character: "f"}},
		Request{JSONRPC: "2.0", Method: MethodTextChangedI, Params: TextChangedParams{Bufnr: 1, Info: InsertChange{Pre: "f", Lnum: 1, Col: 2, Changedtick: 10}}},
		Request{JSONRPC: "2.0", Method: MethodInsertLeave},
	}
	go func() {
		for _, ev := range events {
			inW.Write(frame(t, ev))
		}
	}()

	want := []string{"insertCharPre:f", "textChangedI:f", "insertLeave"}
	for _, w := range want {
		select {
		case got := <-rec.seen:
			if got != w {
				t.Errorf("event = %q, want %q", got, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

type recordingHandler struct {
	seen chan string
}

func (r *recordingHandler) OnInsertCharPre(ch string) { r.seen <- "insertCharPre:" + ch }
func (r *recordingHandler) OnInsertEnter(bufnr int)   { r.seen <- "insertEnter" }
func (r *recordingHandler) OnInsertLeave()            { r.seen <- "insertLeave" }
func (r *recordingHandler) OnTextChangedI(bufnr int, info InsertChange) {
	r.seen <- "textChangedI:" + info.Pre
}
func (r *recordingHandler) OnTextChangedP(bufnr int, info InsertChange) {
	r.seen <- "textChangedP:" + info.Pre
}
func (r *recordingHandler) OnCompleteDone(item Item)                { r.seen <- "completeDone:" + item.Word }
func (r *recordingHandler) OnMenuPopupChanged(ev PopupChangeEvent)  { r.seen <- "pumChanged" }
func (r *recordingHandler) OnConfigChanged()                        { r.seen <- "configChanged" }
