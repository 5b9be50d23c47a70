package integrity

import (
	"testing"
	"time"

	"entitydb/entity"
	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/registry"
	"entitydb/relation"
	"entitydb/serialize"
)

func TestScanFindsDanglingEdge(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	kv := kvengine.OpenMemory()
	reg := registry.New()
	if err := reg.Register(entity.Descriptor{StoreName: "account", KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register account: %v", err)
	}
	if err := reg.Register(entity.Descriptor{StoreName: "tag", KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register tag: %v", err)
	}

	tx, err := kv.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	accountBucket, err := tx.CreateBucketIfNotExists("account")
	if err != nil {
		t.Fatalf("CreateBucketIfNotExists: %v", err)
	}
	accountKey, err := keycodec.Encode(keycodec.U32Spec, keycodec.Single(keycodec.U32(1)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := accountBucket.Put(accountKey, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// tag with key 2 is referenced but never actually saved, simulating
	// drift: an edge pointing at a record that was removed by a path
	// the deletion engine never saw (e.g. a direct bucket write).
	tagKey, err := keycodec.Encode(keycodec.U32Spec, keycodec.Single(keycodec.U32(2)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	freeBucket, err := tx.CreateBucketIfNotExists(relation.BucketName)
	if err != nil {
		t.Fatalf("CreateBucketIfNotExists(free relations): %v", err)
	}
	a := relation.Endpoint{Store: "account", Key: accountKey}
	b := relation.Endpoint{Store: "tag", Key: tagKey}
	if err := relation.CreateRelation(freeBucket, codec, a, b, entity.BreakLink, entity.BreakLink, "tagged"); err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	mon := New(kv, reg, codec, Config{Interval: time.Hour})
	findings := mon.RunOnce()
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].TargetStore != "tag" {
		t.Fatalf("got finding %+v, want TargetStore=tag", findings[0])
	}

	stats := mon.GetStats()
	if stats.TotalRuns != 1 || stats.DanglingEdges != 1 {
		t.Fatalf("got stats %+v, want TotalRuns=1 DanglingEdges=1", stats)
	}
}

func TestScanIsCleanWithNoDrift(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	kv := kvengine.OpenMemory()
	reg := registry.New()
	if err := reg.Register(entity.Descriptor{StoreName: "account", KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register account: %v", err)
	}

	mon := New(kv, reg, codec, Config{Interval: time.Hour})
	findings := mon.RunOnce()
	if len(findings) != 0 {
		t.Fatalf("got %d findings, want 0", len(findings))
	}
}
