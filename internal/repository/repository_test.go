package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/graph"
)

func TestRepository_FetchDownstream(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"partnerId": int64(200), "weight": int64(12), "type": "IN08B"},
		{"partnerId": int64(300), "weight": int64(5), "type": nil},
		{"partnerId": nil, "weight": int64(4)},
	}})

	conns, err := repo.FetchDownstream(context.Background(), 100)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	calls := mem.ReadCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 read query, got %d", len(calls))
	}
	if calls[0].Query != downstreamCypher {
		t.Fatalf("unexpected query\nexpected:\n%s\ngot:\n%s", downstreamCypher, calls[0].Query)
	}
	if calls[0].Params["bodyId"] != int64(100) {
		t.Errorf("expected bodyId 100, got %v", calls[0].Params["bodyId"])
	}

	if len(conns) != 2 {
		t.Fatalf("expected 2 connections (invalid partner dropped), got %d", len(conns))
	}
	if conns[0].Partner != 200 || conns[0].Weight != 12 || conns[0].Type != "IN08B" {
		t.Errorf("unexpected first connection %+v", conns[0])
	}
	if conns[1].Type != domain.Unknown {
		t.Errorf("expected unknown type for missing annotation, got %q", conns[1].Type)
	}
}

func TestRepository_FetchUpstreamUsesUpstreamQuery(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	if _, err := repo.FetchUpstream(context.Background(), 42); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := mem.ReadCalls()[0].Query; got != upstreamCypher {
		t.Fatalf("expected upstream query, got %s", got)
	}
}

func TestRepository_InvalidIDShortCircuits(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	_, err := repo.FetchDownstream(context.Background(), 0)
	if !errors.Is(err, domain.ErrInvalidNeuronID) {
		t.Fatalf("expected ErrInvalidNeuronID, got %v", err)
	}
	if len(mem.ReadCalls()) != 0 {
		t.Fatalf("expected no query for invalid id")
	}
}

func TestRepository_FetchTotalInputs(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"bodyId": int64(200), "totalInputs": int64(100)},
		{"bodyId": int64(300), "totalInputs": float64(50)},
	}})

	totals, err := repo.FetchTotalInputs(context.Background(), []domain.NeuronID{200, 300, 400})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if totals[200] != 100 || totals[300] != 50 {
		t.Errorf("unexpected totals %v", totals)
	}
	if _, ok := totals[400]; ok {
		t.Errorf("expected missing neuron to be absent")
	}

	ids, ok := mem.ReadCalls()[0].Params["bodyIds"].([]int64)
	if !ok || len(ids) != 3 {
		t.Fatalf("expected bodyIds []int64 of len 3, got %T", mem.ReadCalls()[0].Params["bodyIds"])
	}
}

func TestRepository_FetchTotalInputsEmpty(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	totals, err := repo.FetchTotalInputs(context.Background(), nil)
	if err != nil || len(totals) != 0 {
		t.Fatalf("expected empty totals, got %v %v", totals, err)
	}
	if len(mem.ReadCalls()) != 0 {
		t.Fatalf("expected no query")
	}
}

func TestRepository_FetchNeuronsKeepsRequestOrder(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"bodyId": int64(2), "type": "DNa01", "side": "L", "neurotransmitter": "acetylcholine"},
	}})

	infos, err := repo.FetchNeurons(context.Background(), []domain.NeuronID{1, 2})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(infos))
	}
	if infos[0] != domain.UnknownNeuron(1) {
		t.Errorf("expected unknown neuron for id 1, got %+v", infos[0])
	}
	if infos[1].Type != "DNa01" || infos[1].Side != "L" {
		t.Errorf("unexpected info %+v", infos[1])
	}
}

func TestRepository_UpsertConnections(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	err := repo.UpsertConnections(context.Background(), []EdgeRecord{{Pre: 1, Post: 2, Weight: 9}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	calls := mem.WriteCalls()
	if len(calls) != 1 || calls[0].Query != upsertConnectionsCypher {
		t.Fatalf("expected one connection upsert, got %+v", calls)
	}
	rows, ok := calls[0].Params["rows"].([]map[string]any)
	if !ok || len(rows) != 1 || rows[0]["weight"] != int64(9) {
		t.Fatalf("unexpected rows %#v", calls[0].Params["rows"])
	}

	if err := repo.UpsertConnections(context.Background(), []EdgeRecord{{Pre: 1}}); err == nil {
		t.Fatalf("expected error for missing post id")
	}
}

func TestRepository_PropagatesQueryFailure(t *testing.T) {
	mem := graph.NewMemoryClient().WithError(errors.New("boom"))
	repo := New(mem)

	if _, err := repo.FetchDownstream(context.Background(), 5); err == nil {
		t.Fatalf("expected error")
	}
}
