package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"vaultctl/internal/model"
)

func TestJsonlAppendsBatches(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "actions.jsonl")
	sink := NewJsonlStorage(path)

	first := []model.ActionRecord{{
		Unit:        "approve-usdc",
		Kind:        "token_approval",
		Contract:    "0x2222222222222222222222222222222222222222",
		Method:      "approveToken",
		Args:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Role:        "operator",
		Signer:      "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1",
		TxHash:      "0xabc",
		BlockNumber: 101,
		GasUsed:     50000,
		Status:      model.ActionConfirmed,
		RecordedAt:  "2024-01-01T00:00:00Z",
	}}
	second := []model.ActionRecord{{
		Unit:       "pause",
		Kind:       "config_field",
		Method:     "setUnpaused",
		Status:     model.ActionReverted,
		Error:      "transaction reverted",
		RecordedAt: "2024-01-01T00:00:01Z",
	}}

	if err := sink.PutActionBatch(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := sink.PutActionBatch(ctx, nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	if err := sink.PutActionBatch(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, err := ReadActions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := append(append([]model.ActionRecord{}, first...), second...)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected records:\n got %+v\nwant %+v", got, want)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiStopsAtFirstError(t *testing.T) {
	failing := &failingSink{}
	after := &failingSink{}
	err := Multi{nil, failing, after}.PutActionBatch(context.Background(), []model.ActionRecord{{Unit: "u"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if failing.calls != 1 || after.calls != 0 {
		t.Fatalf("unexpected calls: failing=%d after=%d", failing.calls, after.calls)
	}
}
