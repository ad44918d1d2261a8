package queue

import "testing"

func TestMinQueue_Order(t *testing.T) {
	pq := NewMin(4)
	for _, it := range []PriorityQueueItem{
		{Item: 1, Similarity: 0.9},
		{Item: 2, Similarity: 0.5},
		{Item: 3, Similarity: 0.7},
	} {
		pq.PushItem(it)
	}

	want := []float32{0.5, 0.7, 0.9}
	for i, w := range want {
		got, ok := pq.PopItem()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if got.Similarity != w {
			t.Errorf("pop %d: got %v, want %v", i, got.Similarity, w)
		}
	}
	if _, ok := pq.PopItem(); ok {
		t.Error("expected empty queue")
	}
}

func TestMaxQueue_Order(t *testing.T) {
	pq := NewMax(4)
	for _, s := range []float32{0.2, 0.8, 0.4} {
		pq.PushItem(PriorityQueueItem{Similarity: s})
	}

	want := []float32{0.8, 0.4, 0.2}
	for i, w := range want {
		got, _ := pq.PopItem()
		if got.Similarity != w {
			t.Errorf("pop %d: got %v, want %v", i, got.Similarity, w)
		}
	}
}

func TestReplaceTop_KeepsBestK(t *testing.T) {
	const k = 3
	pq := NewMin(k)
	for _, s := range []float32{0.9, 0.5, 0.7, 0.95, 0.1, 0.8} {
		if pq.Len() < k {
			pq.PushItem(PriorityQueueItem{Similarity: s})
			continue
		}
		if top, _ := pq.TopItem(); s > top.Similarity {
			pq.ReplaceTop(PriorityQueueItem{Similarity: s})
		}
	}

	got := map[float32]bool{}
	for pq.Len() > 0 {
		it, _ := pq.PopItem()
		got[it.Similarity] = true
	}
	for _, w := range []float32{0.8, 0.9, 0.95} {
		if !got[w] {
			t.Errorf("missing %v in kept top-k", w)
		}
	}
}
