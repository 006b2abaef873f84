package originfs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
)

func TestCreateFile_CreatesMissingFolders(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(newFakeRemote())

	if err := c.CreateFile(ctx, "/a/b/c.txt", "hi"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	muts := c.PendingMutations()
	if len(muts) != 3 {
		t.Fatalf("got %d mutations, want 3", len(muts))
	}
	want := []struct {
		typ, name, location string
	}{
		{models.FolderType, "a", "origin/(c) users/alice"},
		{models.FolderType, "b", "origin/(c) users/alice/a"},
		{".txt", "c", "origin/(c) users/alice/a/b"},
	}
	for i, w := range want {
		rec, err := decodeAdd(muts[i])
		if err != nil {
			t.Fatalf("mutation %d: %v", i, err)
		}
		if rec.Type != w.typ || rec.Name != w.name || rec.Location != w.location {
			t.Errorf("mutation %d = {%q %q %q}, want %+v", i, rec.Type, rec.Name, rec.Location, w)
		}
		if rec.ID != muts[i].UUID || len(rec.ID) != IDLength {
			t.Errorf("mutation %d: record id %q, uuid %q", i, rec.ID, muts[i].UUID)
		}
		if rec.Created != testNow.UnixMilli() || rec.Edited != testNow.UnixMilli() {
			t.Errorf("mutation %d: times %d/%d", i, rec.Created, rec.Edited)
		}
	}
	file, _ := decodeAdd(muts[2])
	if text, _ := file.Data.Text(); text != "hi" || file.Size != 2 {
		t.Errorf("file payload = %q size %d", text, file.Size)
	}

	if err := c.CreateFile(ctx, "/a/b/d.txt", ""); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if n := c.Pending(); n != 4 {
		t.Errorf("second file in same folder: pending = %d, want 4", n)
	}

	paths, err := c.ListPaths(ctx)
	if err != nil {
		t.Fatalf("ListPaths: %v", err)
	}
	if want := []string{"/a", "/a/b", "/a/b/c.txt", "/a/b/d.txt"}; !reflect.DeepEqual(paths, want) {
		t.Errorf("ListPaths = %v, want %v", paths, want)
	}
}

func TestCreateFile_KeepsNameCase(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(newFakeRemote())

	if err := c.CreateFile(ctx, "/Docs/README", "x"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	rec, err := c.ReadRecord(ctx, "/docs/readme")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.Name != "README" || rec.Type != "" || rec.Location != "origin/(c) users/alice/Docs" {
		t.Errorf("record = {%q %q %q}", rec.Name, rec.Type, rec.Location)
	}
}

func TestCreateFile_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "old-id", "old")
	c := newTestClient(f)

	if err := c.CreateFile(ctx, "/x.txt", "new"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	muts := c.PendingMutations()
	if len(muts) != 2 || muts[0].Command != protocol.CommandDelete || muts[0].UUID != "old-id" ||
		muts[1].Command != protocol.CommandAdd {
		t.Fatalf("mutations = %+v", muts)
	}
	if id, _ := c.GetID(ctx, "/x.txt"); id == "old-id" {
		t.Error("path still points at the replaced record")
	}
	if got, _ := c.ReadContent(ctx, "/x.txt"); got != "new" {
		t.Errorf("ReadContent = %q", got)
	}
}

func TestCreateFile_Root(t *testing.T) {
	c := newTestClient(newFakeRemote())
	if err := c.CreateFile(context.Background(), "/", "x"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("CreateFile(/) = %v, want ErrInvalidPath", err)
	}
}

func TestCreateFolder(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFolder("/a", "id-a")
	c := newTestClient(f)

	if err := c.CreateFolder(ctx, "/a/my.dir"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	muts := c.PendingMutations()
	if len(muts) != 1 {
		t.Fatalf("got %d mutations, want 1", len(muts))
	}
	rec, err := decodeAdd(muts[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != models.FolderType || rec.Name != "my.dir" {
		t.Errorf("folder = {%q %q}", rec.Type, rec.Name)
	}
	raw, _ := json.Marshal(rec.Data)
	if string(raw) != "[]" {
		t.Errorf("folder payload = %s", raw)
	}

	if err := c.CreateFolder(ctx, "/A/My.Dir"); err != nil {
		t.Fatalf("CreateFolder again: %v", err)
	}
	if c.Pending() != 1 {
		t.Error("creating an existing folder should be a no-op")
	}

	if p, err := c.GetPath(ctx, rec.ID); err != nil || p != "/a/my.dir" {
		t.Errorf("GetPath = %q, %v", p, err)
	}
}

func TestWrite_NotFound(t *testing.T) {
	c := newTestClient(newFakeRemote())

	err := c.Write(context.Background(), "/missing.txt", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Write = %v, want ErrNotFound", err)
	}
	if c.Dirty() {
		t.Error("failed write must not queue mutations")
	}
}

func TestWrite_UpdatesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/notes.txt", "id-n", "old")
	c := newTestClient(f)

	if err := c.Write(ctx, "/Notes.txt", "héllo"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	muts := c.PendingMutations()
	want := []struct {
		idx  int
		data string
	}{
		{4, `"héllo"`},
		{10, "1700000000000"},
		{12, "5"},
	}
	if len(muts) != len(want) {
		t.Fatalf("got %d mutations, want %d", len(muts), len(want))
	}
	for i, w := range want {
		m := muts[i]
		if m.Command != protocol.CommandUpdate || m.UUID != "id-n" || m.Index != w.idx || string(m.Data) != w.data {
			t.Errorf("mutation %d = %+v (data %s), want idx %d data %s", i, m, m.Data, w.idx, w.data)
		}
	}

	got, err := c.ReadContent(ctx, "/notes.txt")
	if err != nil || got != "héllo" {
		t.Errorf("ReadContent = %q, %v", got, err)
	}
	if _, records := f.calls(); records != 1 {
		t.Errorf("record fetched %d times, want 1", records)
	}
}

func TestRename_File(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "data")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/x.txt", "/y/z.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if c.Exists(ctx, "/x.txt") {
		t.Error("old path still indexed")
	}
	if id, err := c.GetID(ctx, "/y/z.txt"); err != nil || id != "id-x" {
		t.Errorf("GetID(/y/z.txt) = %q, %v", id, err)
	}
	rec, err := c.ReadRecord(ctx, "/y/z.txt")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.Name != "z" || rec.Type != ".txt" || rec.Location != "origin/(c) users/alice/y" {
		t.Errorf("record = {%q %q %q}", rec.Name, rec.Type, rec.Location)
	}
	if p, _ := c.GetPath(ctx, "id-x"); p != "/y/z.txt" {
		t.Errorf("GetPath = %q", p)
	}

	muts := c.PendingMutations()
	var idx []int
	for _, m := range muts {
		if m.Command != protocol.CommandUpdate || m.UUID != "id-x" {
			t.Errorf("unexpected mutation %+v", m)
		}
		idx = append(idx, m.Index)
	}
	if want := []int{1, 2, 3, 10}; !reflect.DeepEqual(idx, want) {
		t.Errorf("updated slots = %v, want %v", idx, want)
	}
}

func TestRename_FolderMovesDescendants(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFolder("/docs", "id-d")
	f.addFile("/docs/a.txt", "id-a", "a")
	f.addFolder("/docs/sub", "id-s")
	f.addFile("/docs/sub/b.txt", "id-b", "b")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/docs", "/Archive"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	paths, _ := c.ListPaths(ctx)
	if want := []string{"/archive", "/archive/a.txt", "/archive/sub", "/archive/sub/b.txt"}; !reflect.DeepEqual(paths, want) {
		t.Errorf("ListPaths = %v, want %v", paths, want)
	}

	rec, err := c.StatID(ctx, "id-d")
	if err != nil {
		t.Fatalf("StatID: %v", err)
	}
	if rec.Type != models.FolderType || rec.Name != "Archive" {
		t.Errorf("folder = {%q %q}", rec.Type, rec.Name)
	}

	muts := c.PendingMutations()
	if len(muts) != 7 {
		t.Fatalf("got %d mutations, want 7", len(muts))
	}
	moved := map[string]string{
		"id-a": `"origin/(c) users/alice/Archive"`,
		"id-s": `"origin/(c) users/alice/Archive"`,
		"id-b": `"origin/(c) users/alice/Archive/sub"`,
	}
	for _, m := range muts[4:] {
		if m.Index != models.FieldLocation+1 || string(m.Data) != moved[m.UUID] {
			t.Errorf("descendant update %+v (data %s)", m, m.Data)
		}
	}
}

func TestRename_IntoItself(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFolder("/docs", "id-d")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/docs", "/docs/inner"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Rename into itself = %v, want ErrInvalidPath", err)
	}
	if c.Dirty() {
		t.Error("rejected rename queued mutations")
	}
}

func TestRename_DisplacesTarget(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/a.txt", "id-a", "a")
	f.addFile("/b.txt", "id-b", "b")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/a.txt", "/b.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	muts := c.PendingMutations()
	if muts[0].Command != protocol.CommandDelete || muts[0].UUID != "id-b" {
		t.Errorf("first mutation = %+v, want delete of displaced record", muts[0])
	}
	if id, _ := c.GetID(ctx, "/b.txt"); id != "id-a" {
		t.Errorf("GetID(/b.txt) = %q", id)
	}
}

func TestRename_DisplacesFolderTree(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/a.txt", "id-a", "a")
	f.addFolder("/old", "id-o")
	f.addFile("/old/x.txt", "id-x", "x")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/a.txt", "/old"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	muts := c.PendingMutations()
	if len(muts) < 2 || muts[0].UUID != "id-x" || muts[1].UUID != "id-o" {
		t.Fatalf("mutations = %+v, want deletes of id-x then id-o first", muts)
	}
	if c.Exists(ctx, "/old/x.txt") {
		t.Error("child of displaced folder still indexed")
	}
}

func TestRename_OntoAncestor(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFolder("/docs", "id-d")
	f.addFile("/docs/a.txt", "id-a", "a")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/docs/a.txt", "/docs"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Rename onto ancestor = %v, want ErrInvalidPath", err)
	}
	if c.Dirty() {
		t.Error("rejected rename queued mutations")
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "x")
	f.addFolder("/docs", "id-d")
	f.addFile("/docs/a.txt", "id-a", "a")
	f.addFolder("/docs/sub", "id-s")
	f.addFile("/docs/sub/b.txt", "id-b", "b")
	c := newTestClient(f)

	if err := c.Remove(ctx, "/x.txt"); err != nil {
		t.Fatalf("Remove file: %v", err)
	}
	if muts := c.PendingMutations(); len(muts) != 1 || muts[0].Command != protocol.CommandDelete || muts[0].UUID != "id-x" {
		t.Errorf("mutations = %+v", muts)
	}
	if c.Exists(ctx, "/x.txt") {
		t.Error("removed path still exists")
	}

	if err := c.Remove(ctx, "/docs"); err != nil {
		t.Fatalf("Remove folder: %v", err)
	}
	var order []string
	for _, m := range c.PendingMutations()[1:] {
		order = append(order, m.UUID)
	}
	if want := []string{"id-b", "id-s", "id-a", "id-d"}; !reflect.DeepEqual(order, want) {
		t.Errorf("delete order = %v, want %v", order, want)
	}
	if paths, _ := c.ListPaths(ctx); len(paths) != 0 {
		t.Errorf("ListPaths = %v", paths)
	}

	if err := c.Remove(ctx, "/docs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestListDir(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/a/b.txt", "1", "")
	f.addFile("/a/c/d.txt", "2", "")
	f.addFile("/a2/e.txt", "3", "")
	c := newTestClient(f)

	tests := []struct {
		dir  string
		want []string
	}{
		{"/a", []string{"b.txt", "c"}},
		{"/A/", []string{"b.txt", "c"}},
		{"/", []string{"a", "a2"}},
		{"", []string{"a", "a2"}},
		{"/nope", nil},
	}
	for _, tt := range tests {
		got, err := c.ListDir(ctx, tt.dir)
		if err != nil {
			t.Fatalf("ListDir(%q): %v", tt.dir, err)
		}
		sort.Strings(got)
		if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("ListDir(%q) = %v, want %v", tt.dir, got, tt.want)
		}
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "")
	c := newTestClient(f)

	if !c.Exists(ctx, "/X.TXT") {
		t.Error("Exists(/X.TXT) = false")
	}
	if c.Exists(ctx, "/y.txt") {
		t.Error("Exists(/y.txt) = true")
	}

	broken := newFakeRemote()
	broken.indexErr = &client.RemoteError{Op: client.OpIndex, Status: http.StatusBadGateway}
	if newTestClient(broken).Exists(ctx, "/x.txt") {
		t.Error("Exists must be false when the index cannot load")
	}
}

func TestReadContent_Folder(t *testing.T) {
	f := newFakeRemote()
	f.addFolder("/docs", "id-d")
	c := newTestClient(f)

	if _, err := c.ReadContent(context.Background(), "/docs"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("ReadContent(folder) = %v, want ErrInvalidType", err)
	}
}

func TestReadRecord_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "data")
	c := newTestClient(f)

	rec, err := c.ReadRecord(ctx, "/x.txt")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	rec.Name = "changed"
	rec.Data = models.TextPayload("changed")

	again, _ := c.ReadRecord(ctx, "/x.txt")
	if again.Name != "x" {
		t.Errorf("cached record name = %q", again.Name)
	}
	if text, _ := again.Data.Text(); text != "data" {
		t.Errorf("cached payload = %q", text)
	}
}

func TestStatID_NotFound(t *testing.T) {
	c := newTestClient(newFakeRemote())

	_, err := c.StatID(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("StatID = %v, want ErrNotFound", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) || re.Status != http.StatusNotFound {
		t.Errorf("expected wrapped 404 RemoteError, got %v", err)
	}
}

func TestStatID_IdentifierMismatch(t *testing.T) {
	f := newFakeRemote()
	f.records["asked"] = &models.Record{ID: "other", Name: "x"}
	c := newTestClient(f)

	_, err := c.StatID(context.Background(), "asked")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("StatID = %v, want RemoteError", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("mismatch is not a not-found")
	}
}

func TestIndexLoadedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "")
	c := newTestClient(f)

	_, _ = c.GetID(ctx, "/x.txt")
	_ = c.Exists(ctx, "/y")
	_, _ = c.ListDir(ctx, "/")
	_ = c.CreateFile(ctx, "/z.txt", "")

	if index, _ := f.calls(); index != 1 {
		t.Errorf("index fetched %d times, want 1", index)
	}
	if c.Owner() != testOwner {
		t.Errorf("Owner = %q", c.Owner())
	}
}

func TestIndexLoadFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "")
	f.indexErr = &client.RemoteError{Op: client.OpIndex, Status: http.StatusServiceUnavailable}
	c := newTestClient(f)

	_, err := c.GetID(ctx, "/x.txt")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("GetID = %v, want RemoteError", err)
	}

	f.mu.Lock()
	f.indexErr = nil
	f.mu.Unlock()

	if id, err := c.GetID(ctx, "/x.txt"); err != nil || id != "id-x" {
		t.Errorf("GetID after recovery = %q, %v", id, err)
	}
	if index, _ := f.calls(); index != 2 {
		t.Errorf("index fetched %d times, want 2", index)
	}
}

func TestConcurrentFirstReadsShareFetches(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/notes.txt", "id-n", "shared")
	gate := make(chan struct{})
	f.fetchGate = gate
	c := newTestClient(f)

	const readers = 16
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := c.ReadContent(ctx, "/notes.txt")
			if err == nil && text != "shared" {
				err = errors.New("wrong content " + text)
			}
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("reader: %v", err)
		}
	}
	index, record := f.calls()
	if index != 1 || record != 1 {
		t.Errorf("fetches: index=%d record=%d, want 1 and 1", index, record)
	}
}

func TestCommit_ClearsOnSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	c := newTestClient(f)

	if err := c.Commit(ctx); err != nil {
		t.Fatalf("empty Commit: %v", err)
	}
	if len(f.batches) != 0 {
		t.Error("empty log should not send a batch")
	}

	_ = c.CreateFile(ctx, "/x.txt", "x")
	_ = c.CreateFile(ctx, "/y.txt", "y")
	queued := c.PendingMutations()

	if err := c.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.Dirty() {
		t.Error("log not cleared after acknowledged commit")
	}
	if len(f.batches) != 1 || !reflect.DeepEqual(f.batches[0], queued) {
		t.Errorf("batches = %+v, want one batch of %+v", f.batches, queued)
	}
}

func TestCommit_FailureKeepsLog(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.commitErr = &client.RemoteError{Op: client.OpBatch, Status: http.StatusOK, Message: "quota exceeded"}
	c := newTestClient(f)

	_ = c.CreateFile(ctx, "/a/x.txt", "x")
	_ = c.Write(ctx, "/a/x.txt", "xx")
	before := c.PendingMutations()

	err := c.Commit(ctx)
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "quota exceeded" {
		t.Fatalf("Commit = %v, want RemoteError", err)
	}
	if after := c.PendingMutations(); !reflect.DeepEqual(after, before) {
		t.Errorf("log changed by failed commit:\n got %+v\nwant %+v", after, before)
	}
	if !c.Dirty() {
		t.Error("Dirty = false after failed commit")
	}

	f.mu.Lock()
	f.commitErr = nil
	f.mu.Unlock()
	if err := c.Commit(ctx); err != nil {
		t.Fatalf("retry Commit: %v", err)
	}
	if len(f.batches) != 2 || !reflect.DeepEqual(f.batches[1], before) {
		t.Errorf("retried batch = %+v, want %+v", f.batches[len(f.batches)-1], before)
	}
}

func TestCommit_KeepsMutationsQueuedDuringFlight(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.commitGate = make(chan struct{})
	f.commitStarted = make(chan struct{}, 1)
	c := newTestClient(f)

	if err := c.CreateFile(ctx, "/a.txt", "a"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Commit(ctx) }()
	<-f.commitStarted

	if err := c.CreateFile(ctx, "/b.txt", "b"); err != nil {
		t.Fatal(err)
	}
	close(f.commitGate)
	if err := <-done; err != nil {
		t.Fatalf("Commit: %v", err)
	}

	left := c.PendingMutations()
	if len(left) != 1 {
		t.Fatalf("pending = %d, want 1", len(left))
	}
	bID, _ := c.GetID(ctx, "/b.txt")
	if left[0].Command != protocol.CommandAdd || left[0].UUID != bID {
		t.Errorf("pending = %+v, want add of /b.txt", left[0])
	}
	if len(f.batches[0]) != 1 {
		t.Errorf("in-flight batch grew to %d entries", len(f.batches[0]))
	}
}

func TestAllocateID_Redraws(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/dup.txt", "dup", "")

	draws := []string{"dup", "dup", "fresh"}
	var mu sync.Mutex
	c := New(Config{
		Remote: f,
		NewID: func(string) string {
			mu.Lock()
			defer mu.Unlock()
			id := draws[0]
			if len(draws) > 1 {
				draws = draws[1:]
			}
			return id
		},
	})

	if _, err := c.StatID(ctx, "dup"); err != nil {
		t.Fatalf("StatID: %v", err)
	}
	if err := c.CreateFile(ctx, "/n.txt", ""); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if id, _ := c.GetID(ctx, "/n.txt"); id != "fresh" {
		t.Errorf("id = %q, want fresh", id)
	}
}

func TestAllocateID_GivesUp(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/dup.txt", "dup", "")
	c := New(Config{Remote: f, NewID: func(string) string { return "dup" }})

	if _, err := c.StatID(ctx, "dup"); err != nil {
		t.Fatalf("StatID: %v", err)
	}
	if err := c.CreateFile(ctx, "/n.txt", ""); err == nil {
		t.Fatal("expected allocation failure")
	}
	if c.Exists(ctx, "/n.txt") || c.Dirty() {
		t.Error("failed create left state behind")
	}
}

func TestRename_FolderMovesUnreadChildren(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFolder("/d", "id-d")
	f.addFile("/d/c.txt", "id-c", "c")
	c := newTestClient(f)

	if err := c.Rename(ctx, "/d", "/e"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, record := f.calls(); record != 1 {
		t.Fatalf("record fetches before reading the child = %d, want 1", record)
	}

	if p, err := c.GetPath(ctx, "id-c"); err != nil || p != "/e/c.txt" {
		t.Errorf("GetPath(id-c) = %q, %v; want /e/c.txt", p, err)
	}
	rec, err := c.ReadRecord(ctx, "/e/c.txt")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.Location != "origin/(c) users/alice/e" {
		t.Errorf("Location = %q", rec.Location)
	}
}

func TestCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	f := newFakeRemote()
	f.addFile("/a.txt", "id-a", "a")
	gate := make(chan struct{})
	f.fetchGate = gate
	c := newTestClient(f)

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.GetID(firstCtx, "/a.txt")
		first <- err
	}()
	eventually(t, func() bool { index, _ := f.calls(); return index == 1 })

	second := make(chan error, 1)
	go func() {
		_, err := c.GetID(context.Background(), "/a.txt")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-first
	if !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller = %v, want context.Canceled", err)
	}
	if _, ok := client.AsRemote(err); !ok {
		t.Errorf("canceled caller error %T is not a RemoteError", err)
	}

	close(gate)
	if err := <-second; err != nil {
		t.Errorf("caller with live context = %v", err)
	}
	if index, _ := f.calls(); index != 1 {
		t.Errorf("index fetches = %d, want 1", index)
	}
}

func TestStatID_RemovedWhileFetching(t *testing.T) {
	ctx := context.Background()
	f := newFakeRemote()
	f.addFile("/x.txt", "id-x", "x")
	c := newTestClient(f)
	if !c.Exists(ctx, "/x.txt") {
		t.Fatal("index not loaded")
	}

	gate := make(chan struct{})
	f.mu.Lock()
	f.fetchGate = gate
	f.mu.Unlock()

	stat := make(chan error, 1)
	go func() {
		_, err := c.StatID(ctx, "id-x")
		stat <- err
	}()
	eventually(t, func() bool { _, record := f.calls(); return record == 1 })

	if err := c.Remove(ctx, "/x.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	close(gate)

	if err := <-stat; !errors.Is(err, ErrNotFound) {
		t.Errorf("StatID during Remove = %v, want ErrNotFound", err)
	}
	if _, err := c.StatID(ctx, "id-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StatID after Remove = %v, want ErrNotFound", err)
	}
	if _, record := f.calls(); record != 1 {
		t.Errorf("record fetches = %d, want 1", record)
	}
}
