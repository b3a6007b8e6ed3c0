package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdrgen"
)

func TestParseWeights(t *testing.T) {
	got, err := parseWeights("100:5, 101 ,102:0.5,")
	if err != nil {
		t.Fatalf("parseWeights returned error: %v", err)
	}
	want := []cdrgen.Weight{
		{Value: "100", Weight: 5},
		{Value: "101", Weight: 1},
		{Value: "102", Weight: 0.5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := parseWeights("100:x"); err == nil {
		t.Error("expected invalid weight to fail")
	}
}

func TestWriteDataset(t *testing.T) {
	cfg := cdrgen.DefaultConfig()
	cfg.Count = 10
	gen, err := cdrgen.New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "calls.json")
	if err := writeDataset(path, cdrgen.Dataset(gen.Calls())); err != nil {
		t.Fatalf("writeDataset returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	var ds cdr.Dataset
	if err := ds.UnmarshalJSON(data); err != nil {
		t.Fatalf("output is not a dataset: %v", err)
	}
	if len(ds.Rows) != 10 || !reflect.DeepEqual(ds.Header, cdrgen.Header) {
		t.Errorf("unexpected dataset: %d rows, header %v", len(ds.Rows), ds.Header)
	}
}
