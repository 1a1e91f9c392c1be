package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"glen/internal/models"
)

// memAdjacency is an in-memory Adjacency for traversal tests.
type memAdjacency struct {
	msgs    map[string]models.Message
	parents map[string][]string
	childs  map[string][]string
}

func newMemAdjacency() *memAdjacency {
	return &memAdjacency{
		msgs:    map[string]models.Message{},
		parents: map[string][]string{},
		childs:  map[string][]string{},
	}
}

func (a *memAdjacency) add(id string, createdAt int64, parentIDs ...string) {
	a.msgs[id] = models.Message{ID: id, ChannelID: "chan", Sender: "s", CreatedAt: createdAt, ParentIDs: parentIDs}
	for _, p := range parentIDs {
		a.parents[id] = append(a.parents[id], p)
		a.childs[p] = append(a.childs[p], id)
	}
}

func (a *memAdjacency) ParentIDs(_ context.Context, id string) ([]string, error) {
	return a.parents[id], nil
}

func (a *memAdjacency) ChildIDs(_ context.Context, id string) ([]string, error) {
	return a.childs[id], nil
}

func (a *memAdjacency) GetMessages(_ context.Context, ids []string) ([]models.Message, error) {
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := a.msgs[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// buildThread: A <- B <- D, A <- C, and E standalone.
//
//	A
//	├── B ── D
//	└── C        E
func buildThread() *memAdjacency {
	adj := newMemAdjacency()
	adj.add("A", 1)
	adj.add("B", 2, "A")
	adj.add("C", 3, "A")
	adj.add("D", 4, "B")
	adj.add("E", 5)
	return adj
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestThreadGraphComponent(t *testing.T) {
	adj := buildThread()
	tr := NewTraverser(adj)
	ctx := context.Background()

	// Any start node in the component yields the same set, sorted by time.
	for _, start := range []string{"A", "B", "C", "D"} {
		msgs, err := tr.ThreadGraph(ctx, start)
		require.NoError(t, err)
		require.Equal(t, []string{"A", "B", "C", "D"}, ids(msgs), "start=%s", start)
	}

	msgs, err := tr.ThreadGraph(ctx, "E")
	require.NoError(t, err)
	require.Equal(t, []string{"E"}, ids(msgs))
}

func TestThreadGraphMergeNode(t *testing.T) {
	adj := newMemAdjacency()
	adj.add("m1", 1)
	adj.add("m2", 2)
	adj.add("m3", 3, "m1", "m2")
	tr := NewTraverser(adj)
	ctx := context.Background()

	fromChild, err := tr.ThreadGraph(ctx, "m3")
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2", "m3"}, ids(fromChild))

	fromParent, err := tr.ThreadGraph(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2", "m3"}, ids(fromParent))
}

func TestThreadGraphDanglingParent(t *testing.T) {
	adj := newMemAdjacency()
	adj.add("B", 2, "A") // parent A never arrived
	tr := NewTraverser(adj)

	msgs, err := tr.ThreadGraph(context.Background(), "B")
	require.NoError(t, err)
	// A is visited as an id but has no row to materialize.
	require.Equal(t, []string{"B"}, ids(msgs))
}

func TestThreadGraphCycle(t *testing.T) {
	adj := newMemAdjacency()
	adj.add("A", 1, "C") // A claims C as parent: cycle A->C->B->A
	adj.add("B", 2, "A")
	adj.add("C", 3, "B")
	tr := NewTraverser(adj)

	msgs, err := tr.ThreadGraph(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, ids(msgs))
}

func TestThreadGraphNodeCap(t *testing.T) {
	adj := newMemAdjacency()
	adj.add("root", 0)
	for i := 0; i < 50; i++ {
		adj.add(fmt.Sprintf("m%02d", i), int64(i+1), "root")
	}
	tr := NewTraverserWithLimit(adj, 10)

	msgs, err := tr.ThreadGraph(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, msgs, 10)
}

func TestThreadContextSplits(t *testing.T) {
	adj := buildThread()
	tr := NewTraverser(adj)

	got, err := tr.ThreadContext(context.Background(), "B")
	require.NoError(t, err)

	require.Equal(t, "B", got.Focus.ID)
	require.Equal(t, []string{"A"}, ids(got.Ancestors))
	require.Equal(t, []string{"D"}, ids(got.Descendants))
	// C hangs off the shared ancestor A; it is neither ancestor nor
	// descendant of B.
	require.Equal(t, []string{"C"}, got.SiblingParentIDs)

	require.Equal(t, []string{"A"}, got.ParentMap["B"])
	require.Equal(t, []string{"A"}, got.ParentMap["C"])
	require.Equal(t, []string{"B"}, got.ParentMap["D"])
	require.NotContains(t, got.ParentMap, "A")
}

func TestThreadContextMultiParent(t *testing.T) {
	adj := newMemAdjacency()
	adj.add("A", 1)
	adj.add("B", 2)
	adj.add("M", 3, "A", "B") // merge node with two parents
	adj.add("R", 4, "M")
	tr := NewTraverser(adj)

	got, err := tr.ThreadContext(context.Background(), "M")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(got.Ancestors))
	require.Equal(t, []string{"R"}, ids(got.Descendants))
	require.Empty(t, got.SiblingParentIDs)
	require.Equal(t, []string{"A", "B"}, got.ParentMap["M"])
}

func TestThreadContextUnknownFocus(t *testing.T) {
	tr := NewTraverser(newMemAdjacency())
	_, err := tr.ThreadContext(context.Background(), "ghost")
	require.ErrorIs(t, err, models.ErrMessageNotFound)
}
