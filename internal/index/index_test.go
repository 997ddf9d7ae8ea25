package index

import (
	"testing"

	"github.com/bre/mailfile/internal/mailstore"
)

func TestPutGetDelete(t *testing.T) {
	ix := New()
	e := Entry{LatestSeq: 5, Metadata: map[string]any{"ts": 1.0}, Versions: map[mailstore.Seq]bool{5: true}}
	ix.Put("a/b", e)

	got, ok := ix.Get("a/b")
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if got.LatestSeq != 5 {
		t.Fatalf("LatestSeq = %d, want 5", got.LatestSeq)
	}

	// Returned entry must be a defensive copy.
	got.Metadata["ts"] = 2.0
	got2, _ := ix.Get("a/b")
	if got2.Metadata["ts"] != 1.0 {
		t.Fatalf("mutation of returned entry leaked into index: %v", got2.Metadata)
	}

	ix.Delete("a/b")
	if _, ok := ix.Get("a/b"); ok {
		t.Fatal("expected entry to be gone after Delete")
	}
}

func TestListPrefixAndTombstones(t *testing.T) {
	ix := New()
	ix.Put("dir/a", Entry{LatestSeq: 1, Metadata: map[string]any{}, Versions: map[mailstore.Seq]bool{1: true}})
	ix.Put("dir/b", Entry{LatestSeq: 2, Metadata: map[string]any{}, Versions: map[mailstore.Seq]bool{2: true}})
	ix.Put("dir/c", Entry{LatestSeq: 3, Metadata: map[string]any{"deleted": true}, Versions: map[mailstore.Seq]bool{3: true}})
	ix.Put("other/x", Entry{LatestSeq: 4, Metadata: map[string]any{}, Versions: map[mailstore.Seq]bool{4: true}})

	got := ix.List("dir/")
	if len(got) != 2 || got[0] != "dir/a" || got[1] != "dir/b" {
		t.Fatalf("List(\"dir/\") = %v", got)
	}

	all := ix.List("")
	if len(all) != 3 {
		t.Fatalf("List(\"\") should exclude tombstones, got %v", all)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/a/b/":     "a/b",
		"a//b///c":  "a/b/c",
		"":          "",
		"///":       "",
		"plain.txt": "plain.txt",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
