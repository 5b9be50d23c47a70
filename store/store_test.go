package store

import (
	"testing"

	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/serialize"
)

type widget struct {
	Name string
}

func openBucket(t *testing.T, name string) (kvengine.Tx, kvengine.Bucket) {
	t.Helper()
	db := kvengine.OpenMemory()
	tx, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	b, err := tx.CreateBucketIfNotExists(name)
	if err != nil {
		t.Fatalf("CreateBucketIfNotExists: %v", err)
	}
	return tx, b
}

func TestSaveGet(t *testing.T) {
	_, b := openBucket(t, "widgets")
	s := New[widget](keycodec.U32Spec, serialize.MsgpackCodec{})

	key := keycodec.Single(keycodec.U32(7))
	if err := s.Save(b, key, &widget{Name: "cog"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(b, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "cog" {
		t.Fatalf("got %+v, want Name=cog", got)
	}
}

func TestGetMissing(t *testing.T) {
	_, b := openBucket(t, "widgets")
	s := New[widget](keycodec.U32Spec, serialize.MsgpackCodec{})
	if _, err := s.Get(b, keycodec.Single(keycodec.U32(1))); err != ErrNotFound {
		t.Fatalf("got err %v, want ErrNotFound", err)
	}
}

func TestGetAllAndFilter(t *testing.T) {
	_, b := openBucket(t, "widgets")
	s := New[widget](keycodec.U32Spec, serialize.MsgpackCodec{})

	for i, name := range []string{"a", "b", "c"} {
		if err := s.Save(b, keycodec.Single(keycodec.U32(uint32(i))), &widget{Name: name}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	all, err := s.GetAll(b)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}

	filtered, err := s.GetWithFilter(b, func(w *widget) bool { return w.Name == "b" })
	if err != nil {
		t.Fatalf("GetWithFilter: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "b" {
		t.Fatalf("got %+v, want single record named b", filtered)
	}
}

func TestDelete(t *testing.T) {
	_, b := openBucket(t, "widgets")
	s := New[widget](keycodec.U32Spec, serialize.MsgpackCodec{})
	key := keycodec.Single(keycodec.U32(1))
	if err := s.Save(b, key, &widget{Name: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(b, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(b, key); err != ErrNotFound {
		t.Fatalf("got err %v after delete, want ErrNotFound", err)
	}
}

func TestSaveNextAssignsIncreasingKeys(t *testing.T) {
	_, b := openBucket(t, "widgets")
	s := New[widget](keycodec.U32Spec, serialize.MsgpackCodec{})

	v1, err := s.SaveNext(b, &widget{Name: "first"})
	if err != nil {
		t.Fatalf("SaveNext: %v", err)
	}
	if v1.AsU32() != 0 {
		t.Fatalf("got key %d, want 0", v1.AsU32())
	}
	v2, err := s.SaveNext(b, &widget{Name: "second"})
	if err != nil {
		t.Fatalf("SaveNext: %v", err)
	}
	if v2.AsU32() != 1 {
		t.Fatalf("got key %d, want 1", v2.AsU32())
	}
}

func TestSaveNextDoesNotReuseRemovedNonMaxKey(t *testing.T) {
	_, b := openBucket(t, "widgets")
	s := New[widget](keycodec.U32Spec, serialize.MsgpackCodec{})

	for i := 0; i < 3; i++ {
		if _, err := s.SaveNext(b, &widget{Name: "w"}); err != nil {
			t.Fatalf("SaveNext %d: %v", i, err)
		}
	}
	// Keys are now 0, 1, 2. Removing key 1 (not the max) must not
	// affect the next allocation, which only ever looks at the
	// highest existing key (spec.md §4.7, scenario S1).
	if err := s.Delete(b, keycodec.Single(keycodec.U32(1))); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	v, err := s.SaveNext(b, &widget{Name: "y"})
	if err != nil {
		t.Fatalf("SaveNext: %v", err)
	}
	if v.AsU32() != 3 {
		t.Fatalf("got key %d, want 3", v.AsU32())
	}
}

func TestSaveChildScopesCounterPerParent(t *testing.T) {
	_, b := openBucket(t, "children")
	s := New[widget](keycodec.ChildSpec(keycodec.KindU32), serialize.MsgpackCodec{})

	parentA := keycodec.U32(10)
	parentB := keycodec.U32(20)

	k1, err := s.SaveChild(b, parentA, &widget{Name: "a1"})
	if err != nil {
		t.Fatalf("SaveChild: %v", err)
	}
	if k1.Values[1].AsU32() != 0 {
		t.Fatalf("got child index %d, want 0", k1.Values[1].AsU32())
	}

	if _, err := s.SaveChild(b, parentB, &widget{Name: "b1"}); err != nil {
		t.Fatalf("SaveChild: %v", err)
	}

	k2, err := s.SaveChild(b, parentA, &widget{Name: "a2"})
	if err != nil {
		t.Fatalf("SaveChild: %v", err)
	}
	if k2.Values[1].AsU32() != 1 {
		t.Fatalf("got child index %d, want 1 (parentB's child must not affect parentA's counter)", k2.Values[1].AsU32())
	}
}
