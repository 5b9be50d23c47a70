package deletion

import (
	"testing"

	"entitydb/entity"
	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/registry"
	"entitydb/relation"
	"entitydb/serialize"
)

const (
	storeProfile  = "profile"
	storeSettings = "settings"
	storeOrder    = "order"
	storeLineItem = "lineitem"
	storeAccount  = "account"
	storeTag      = "tag"
)

func newTx(t *testing.T) (kvengine.Database, kvengine.Tx) {
	t.Helper()
	db := kvengine.OpenMemory()
	tx, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return db, tx
}

func putRaw(t *testing.T, tx kvengine.Tx, storeName string, key keycodec.Key, spec keycodec.Spec, codec serialize.Codec, value interface{}) []byte {
	t.Helper()
	b, err := tx.CreateBucketIfNotExists(storeName)
	if err != nil {
		t.Fatalf("CreateBucketIfNotExists(%s): %v", storeName, err)
	}
	k, err := keycodec.Encode(spec, key)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := codec.Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := b.Put(k, v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return k
}

func exists(t *testing.T, tx kvengine.Tx, storeName string, k []byte) bool {
	t.Helper()
	b := tx.Bucket(storeName)
	return b != nil && b.Get(k) != nil
}

func TestSiblingErrorBlocksDeletion(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	reg := registry.New()
	profileDescriptor := entity.Descriptor{
		StoreName: storeProfile,
		KeySpec:   keycodec.U32Spec,
		Siblings:  []entity.SiblingEdge{{StoreName: storeSettings, Behavior: entity.Error}},
	}
	settingsDescriptor := entity.Descriptor{StoreName: storeSettings, KeySpec: keycodec.U32Spec}
	if err := reg.Register(profileDescriptor); err != nil {
		t.Fatalf("Register profile: %v", err)
	}
	if err := reg.Register(settingsDescriptor); err != nil {
		t.Fatalf("Register settings: %v", err)
	}

	_, tx := newTx(t)
	key := keycodec.Single(keycodec.U32(1))
	profileKey := putRaw(t, tx, storeProfile, key, keycodec.U32Spec, codec, map[string]string{"name": "ada"})
	putRaw(t, tx, storeSettings, key, keycodec.U32Spec, codec, map[string]string{"theme": "dark"})

	eng := New(reg, codec)
	_, err := eng.Remove(tx, storeProfile, profileKey)
	if _, ok := err.(*entity.IntegrityViolation); !ok {
		t.Fatalf("got err %v, want *entity.IntegrityViolation", err)
	}
	if !exists(t, tx, storeProfile, profileKey) {
		t.Fatal("profile was deleted despite blocked deletion")
	}
}

func TestSiblingCascadeDeletesBothSides(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	reg := registry.New()
	if err := reg.Register(entity.Descriptor{
		StoreName: storeProfile,
		KeySpec:   keycodec.U32Spec,
		Siblings:  []entity.SiblingEdge{{StoreName: storeSettings, Behavior: entity.Cascade}},
	}); err != nil {
		t.Fatalf("Register profile: %v", err)
	}
	if err := reg.Register(entity.Descriptor{StoreName: storeSettings, KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register settings: %v", err)
	}

	_, tx := newTx(t)
	key := keycodec.Single(keycodec.U32(1))
	profileKey := putRaw(t, tx, storeProfile, key, keycodec.U32Spec, codec, map[string]string{"name": "ada"})
	settingsKey := putRaw(t, tx, storeSettings, key, keycodec.U32Spec, codec, map[string]string{"theme": "dark"})

	eng := New(reg, codec)
	if _, err := eng.Remove(tx, storeProfile, profileKey); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if exists(t, tx, storeProfile, profileKey) {
		t.Fatal("profile still present")
	}
	if exists(t, tx, storeSettings, settingsKey) {
		t.Fatal("settings sibling still present after cascade")
	}
}

func TestAsymmetricSiblingCascadeIntoErrorDoesNotBlock(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	reg := registry.New()
	// profile --Cascade--> settings, settings --Error--> profile: an
	// asymmetric mutual sibling pair (spec.md §8 S3). Removing profile
	// cascades into settings; settings's own Error declaration toward
	// profile must not block that cascade, since profile is already on
	// its way out as part of the same Remove call.
	if err := reg.Register(entity.Descriptor{
		StoreName: storeProfile,
		KeySpec:   keycodec.U32Spec,
		Siblings:  []entity.SiblingEdge{{StoreName: storeSettings, Behavior: entity.Cascade}},
	}); err != nil {
		t.Fatalf("Register profile: %v", err)
	}
	if err := reg.Register(entity.Descriptor{
		StoreName: storeSettings,
		KeySpec:   keycodec.U32Spec,
		Siblings:  []entity.SiblingEdge{{StoreName: storeProfile, Behavior: entity.Error}},
	}); err != nil {
		t.Fatalf("Register settings: %v", err)
	}

	_, tx := newTx(t)
	key := keycodec.Single(keycodec.U32(1))
	profileKey := putRaw(t, tx, storeProfile, key, keycodec.U32Spec, codec, map[string]string{"name": "ada"})
	settingsKey := putRaw(t, tx, storeSettings, key, keycodec.U32Spec, codec, map[string]string{"theme": "dark"})

	eng := New(reg, codec)
	if _, err := eng.Remove(tx, storeProfile, profileKey); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if exists(t, tx, storeProfile, profileKey) {
		t.Fatal("profile still present after its own deletion")
	}
	if exists(t, tx, storeSettings, settingsKey) {
		t.Fatal("settings still present after cascade from profile")
	}
}

func TestChildCascadeDeletesAllChildren(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	reg := registry.New()
	if err := reg.Register(entity.Descriptor{
		StoreName: storeOrder,
		KeySpec:   keycodec.U32Spec,
		Children:  []entity.ChildEdge{{StoreName: storeLineItem, Behavior: entity.Cascade}},
	}); err != nil {
		t.Fatalf("Register order: %v", err)
	}
	if err := reg.Register(entity.Descriptor{StoreName: storeLineItem, KeySpec: keycodec.ChildSpec(keycodec.KindU32)}); err != nil {
		t.Fatalf("Register lineitem: %v", err)
	}

	_, tx := newTx(t)
	orderKey := putRaw(t, tx, storeOrder, keycodec.Single(keycodec.U32(5)), keycodec.U32Spec, codec, map[string]string{"status": "open"})
	childSpec := keycodec.ChildSpec(keycodec.KindU32)
	li1 := putRaw(t, tx, storeLineItem, keycodec.Pair(keycodec.U32(5), keycodec.U32(1)), childSpec, codec, map[string]string{"sku": "a"})
	li2 := putRaw(t, tx, storeLineItem, keycodec.Pair(keycodec.U32(5), keycodec.U32(2)), childSpec, codec, map[string]string{"sku": "b"})
	// A line item under a different order must survive untouched.
	otherLi := putRaw(t, tx, storeLineItem, keycodec.Pair(keycodec.U32(6), keycodec.U32(1)), childSpec, codec, map[string]string{"sku": "c"})

	eng := New(reg, codec)
	if _, err := eng.Remove(tx, storeOrder, orderKey); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if exists(t, tx, storeOrder, orderKey) {
		t.Fatal("order still present")
	}
	if exists(t, tx, storeLineItem, li1) || exists(t, tx, storeLineItem, li2) {
		t.Fatal("line items still present after parent cascade")
	}
	if !exists(t, tx, storeLineItem, otherLi) {
		t.Fatal("unrelated order's line item was deleted")
	}
}

func TestFreeRelationBreakLinkAndCascade(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	reg := registry.New()
	if err := reg.Register(entity.Descriptor{StoreName: storeAccount, KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register account: %v", err)
	}
	if err := reg.Register(entity.Descriptor{StoreName: storeTag, KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register tag: %v", err)
	}

	_, tx := newTx(t)
	accountKey := putRaw(t, tx, storeAccount, keycodec.Single(keycodec.U32(1)), keycodec.U32Spec, codec, map[string]string{"owner": "ada"})
	tagKey := putRaw(t, tx, storeTag, keycodec.Single(keycodec.U32(2)), keycodec.U32Spec, codec, map[string]string{"label": "vip"})

	freeBucket, err := tx.CreateBucketIfNotExists(relation.BucketName)
	if err != nil {
		t.Fatalf("CreateBucketIfNotExists(free relations): %v", err)
	}
	a := relation.Endpoint{Store: storeAccount, Key: accountKey}
	b := relation.Endpoint{Store: storeTag, Key: tagKey}
	// account --Cascade--> tag (deleting the account cascades into the tag);
	// tag --BreakLink--> account (deleting the tag only drops the edge).
	if err := relation.CreateRelation(freeBucket, codec, a, b, entity.Cascade, entity.BreakLink, "tagged"); err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}

	eng := New(reg, codec)

	// Deleting the tag (BreakLink side) must not touch the account.
	if _, err := eng.Remove(tx, storeTag, tagKey); err != nil {
		t.Fatalf("Remove tag: %v", err)
	}
	if !exists(t, tx, storeAccount, accountKey) {
		t.Fatal("account removed by a BreakLink edge")
	}
	related, err := relation.Related(freeBucket, codec, a, storeTag, nil)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 0 {
		t.Fatalf("got %d residual edges after BreakLink deletion, want 0", len(related))
	}

	// Re-link, then delete the account (Cascade side): the tag must go too.
	tagKey2 := putRaw(t, tx, storeTag, keycodec.Single(keycodec.U32(2)), keycodec.U32Spec, codec, map[string]string{"label": "vip"})
	b2 := relation.Endpoint{Store: storeTag, Key: tagKey2}
	if err := relation.CreateRelation(freeBucket, codec, a, b2, entity.Cascade, entity.BreakLink, "tagged"); err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if _, err := eng.Remove(tx, storeAccount, accountKey); err != nil {
		t.Fatalf("Remove account: %v", err)
	}
	if exists(t, tx, storeAccount, accountKey) {
		t.Fatal("account still present after its own deletion")
	}
	if exists(t, tx, storeTag, tagKey2) {
		t.Fatal("tag still present after Cascade deletion of account")
	}
}

func TestNamedFreeRelationsAreIndependent(t *testing.T) {
	codec := serialize.MsgpackCodec{}
	reg := registry.New()
	if err := reg.Register(entity.Descriptor{StoreName: storeAccount, KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register account: %v", err)
	}
	if err := reg.Register(entity.Descriptor{StoreName: storeTag, KeySpec: keycodec.U32Spec}); err != nil {
		t.Fatalf("Register tag: %v", err)
	}

	_, tx := newTx(t)
	accountKey := putRaw(t, tx, storeAccount, keycodec.Single(keycodec.U32(1)), keycodec.U32Spec, codec, map[string]string{"owner": "ada"})
	mainKey := putRaw(t, tx, storeTag, keycodec.Single(keycodec.U32(2)), keycodec.U32Spec, codec, map[string]string{"label": "main"})
	secondaryKey := putRaw(t, tx, storeTag, keycodec.Single(keycodec.U32(3)), keycodec.U32Spec, codec, map[string]string{"label": "secondary"})

	freeBucket, err := tx.CreateBucketIfNotExists(relation.BucketName)
	if err != nil {
		t.Fatalf("CreateBucketIfNotExists: %v", err)
	}
	a := relation.Endpoint{Store: storeAccount, Key: accountKey}
	main := relation.Endpoint{Store: storeTag, Key: mainKey}
	secondary := relation.Endpoint{Store: storeTag, Key: secondaryKey}
	if err := relation.CreateRelation(freeBucket, codec, a, main, entity.BreakLink, entity.BreakLink, "main"); err != nil {
		t.Fatalf("CreateRelation main: %v", err)
	}
	if err := relation.CreateRelation(freeBucket, codec, a, secondary, entity.BreakLink, entity.BreakLink, "secondary"); err != nil {
		t.Fatalf("CreateRelation secondary: %v", err)
	}

	mainName := "main"
	related, err := relation.Related(freeBucket, codec, a, storeTag, &mainName)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 1 {
		t.Fatalf("got %d edges named main, want 1", len(related))
	}

	all, err := relation.Related(freeBucket, codec, a, storeTag, nil)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d total edges, want 2", len(all))
	}
}
