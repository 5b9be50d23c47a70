// Command entityadmin is a small operational CLI over an entitydb
// database: list registered stores, dump a store's keys, and run a
// one-shot integrity scan. It consolidates the shape of the teacher's
// tools/admin, tools/diagnostics, and tools/entities one-off scripts
// into one maintained tool instead of dozens of throwaway mains.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"entitydb/config"
	"entitydb/entity"
	"entitydb/integrity"
	"entitydb/kvengine"
	"entitydb/logger"
	"entitydb/registry"
	"entitydb/serialize"
)

func main() {
	cfg := config.Load()
	logger.Configure()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "stores":
		runStores(cfg)
	case "dump":
		runDump(cfg, os.Args[2:])
	case "scan":
		runScan(cfg)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: entityadmin <stores|dump|scan> [flags]")
	fmt.Fprintln(os.Stderr, "  stores          list registered store names")
	fmt.Fprintln(os.Stderr, "  dump -store=S   print every key in store S, one per line, hex-encoded")
	fmt.Fprintln(os.Stderr, "  scan            run one free-relation integrity scan and print findings")
}

// openRegistered opens the configured database and reads the registry
// markers in a read-only transaction, so store names are known without the caller
// needing to compile-in every entity type's Descriptor. This CLI only
// ever reads keys and store names, never record bytes, so it never
// needs a Descriptor's KeySpec or edges, just the __registry bucket's
// marker entries (spec.md §6).
func openRegistered(cfg *config.Config) (kvengine.Database, []string, error) {
	kv, err := kvengine.OpenBolt(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	tx, err := kv.Begin(false)
	if err != nil {
		kv.Close()
		return nil, nil, err
	}
	defer tx.Rollback()

	const registryBucketName = "__registry"
	bucket := tx.Bucket(registryBucketName)
	if bucket == nil {
		return kv, nil, nil
	}
	var names []string
	c := bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		names = append(names, string(k))
	}
	return kv, names, nil
}

func runStores(cfg *config.Config) {
	kv, names, err := openRegistered(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entityadmin: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()
	for _, name := range names {
		fmt.Println(name)
	}
}

func runDump(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	storeName := fs.String("store", "", "store name to dump")
	fs.Parse(args)
	if *storeName == "" {
		fmt.Fprintln(os.Stderr, "entityadmin: dump requires -store")
		os.Exit(2)
	}

	kv, err := kvengine.OpenBolt(cfg.DatabasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "entityadmin: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	tx, err := kv.Begin(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entityadmin: %v\n", err)
		os.Exit(1)
	}
	defer tx.Rollback()

	bucket := tx.Bucket(*storeName)
	if bucket == nil {
		fmt.Fprintf(os.Stderr, "entityadmin: store %q not found\n", *storeName)
		os.Exit(1)
	}
	c := bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		fmt.Printf("%x\n", k)
	}
}

func runScan(cfg *config.Config) {
	kv, names, err := openRegistered(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entityadmin: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	// The monitor only needs a registry that knows which store names
	// exist, not their full Descriptor (it reads edges, not sibling or
	// child declarations), so a bare name-only registration is enough
	// here.
	reg := registry.New()
	for _, name := range names {
		_ = reg.Register(entity.Descriptor{StoreName: name})
	}

	mon := integrity.New(kv, reg, serialize.MsgpackCodec{}, integrity.Config{Interval: time.Hour})
	findings := mon.RunOnce()
	if len(findings) == 0 {
		fmt.Println("no dangling free-relation edges found")
		return
	}
	for _, f := range findings {
		fmt.Printf("dangling edge: %s[%x] --%s--> %s[%x] (target missing)\n",
			f.SourceStore, f.SourceKey, f.Name, f.TargetStore, f.TargetKey)
	}
	os.Exit(1)
}
