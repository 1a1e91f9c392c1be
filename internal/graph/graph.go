// Package graph answers bounded traversal queries over the stored message
// relationship graph. Reply edges are sender-controlled, so traversal assumes
// nothing about the shape of the graph: cycles, dangling parents and
// adversarially wide fan-out all terminate at the node cap.
package graph

import (
	"context"
	"sort"

	"glen/internal/models"
)

// DefaultMaxNodes is the hard bound on visited nodes per traversal.
const DefaultMaxNodes = 1000

// Adjacency is the storage contract traversal runs against.
type Adjacency interface {
	ParentIDs(ctx context.Context, messageID string) ([]string, error)
	ChildIDs(ctx context.Context, messageID string) ([]string, error)
	GetMessages(ctx context.Context, ids []string) ([]models.Message, error)
}

// Traverser runs graph queries over already-persisted data. Queries are
// synchronous bounded computations; they never touch the transport.
type Traverser struct {
	adj      Adjacency
	maxNodes int
}

func NewTraverser(adj Adjacency) *Traverser {
	return &Traverser{adj: adj, maxNodes: DefaultMaxNodes}
}

// NewTraverserWithLimit overrides the node cap; maxNodes <= 0 falls back to
// the default.
func NewTraverserWithLimit(adj Adjacency, maxNodes int) *Traverser {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &Traverser{adj: adj, maxNodes: maxNodes}
}

// ThreadGraph walks the connected component around startID, treating edges as
// undirected, and returns the visited messages sorted ascending by creation
// time. Within one component the result is invariant under choice of start
// node, up to truncation at the node cap.
func (t *Traverser) ThreadGraph(ctx context.Context, startID string) ([]models.Message, error) {
	visited, err := t.walk(ctx, startID, t.bothDirections)
	if err != nil {
		return nil, err
	}
	return t.materialize(ctx, visited)
}

// Context is the directed neighborhood around a focus message.
type Context struct {
	Ancestors   []models.Message
	Focus       *models.Message
	Descendants []models.Message
	// ParentMap holds the parent edges of every collected node, for edge
	// rendering.
	ParentMap map[string][]string
	// SiblingParentIDs are nodes in the bounded undirected neighborhood that a
	// strict descendant walk from Focus does not reach: branches hanging off a
	// shared ancestor rather than true replies-to-focus.
	SiblingParentIDs []string
}

// ThreadContext splits the bounded neighborhood of focusID into ancestors
// (transitive parent closure), descendants (transitive child closure) and
// sibling branches.
func (t *Traverser) ThreadContext(ctx context.Context, focusID string) (*Context, error) {
	focusRows, err := t.adj.GetMessages(ctx, []string{focusID})
	if err != nil {
		return nil, err
	}
	if len(focusRows) == 0 {
		return nil, models.ErrMessageNotFound
	}
	focus := focusRows[0]

	ancestors, err := t.walk(ctx, focusID, t.adj.ParentIDs)
	if err != nil {
		return nil, err
	}
	descendants, err := t.walk(ctx, focusID, t.adj.ChildIDs)
	if err != nil {
		return nil, err
	}
	undirected, err := t.walk(ctx, focusID, t.bothDirections)
	if err != nil {
		return nil, err
	}

	delete(ancestors, focusID)
	delete(descendants, focusID)

	var siblings []string
	for id := range undirected {
		if id == focusID {
			continue
		}
		if _, ok := descendants[id]; ok {
			continue
		}
		if _, ok := ancestors[id]; ok {
			continue
		}
		siblings = append(siblings, id)
	}
	sort.Strings(siblings)

	parentMap := make(map[string][]string, len(undirected))
	for id := range undirected {
		parents, err := t.adj.ParentIDs(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(parents) > 0 {
			parentMap[id] = parents
		}
	}

	ancMsgs, err := t.materialize(ctx, ancestors)
	if err != nil {
		return nil, err
	}
	descMsgs, err := t.materialize(ctx, descendants)
	if err != nil {
		return nil, err
	}

	return &Context{
		Ancestors:        ancMsgs,
		Focus:            &focus,
		Descendants:      descMsgs,
		ParentMap:        parentMap,
		SiblingParentIDs: siblings,
	}, nil
}

// walk is a breadth-first traversal with an explicit visited set. The loop
// invariant len(visited) < maxNodes holds on every enqueue, so pathological
// graphs terminate; cycles are absorbed by the visited check. Never recurses.
func (t *Traverser) walk(ctx context.Context, startID string, neighbors func(context.Context, string) ([]string, error)) (map[string]struct{}, error) {
	visited := make(map[string]struct{})
	queue := []string{startID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		if len(visited) >= t.maxNodes {
			break
		}
		visited[id] = struct{}{}

		next, err := neighbors(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, n := range next {
			if _, seen := visited[n]; !seen {
				queue = append(queue, n)
			}
		}
	}
	return visited, nil
}

func (t *Traverser) bothDirections(ctx context.Context, id string) ([]string, error) {
	parents, err := t.adj.ParentIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := t.adj.ChildIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return append(parents, children...), nil
}

// materialize loads rows for the visited set, dropping ids with no local row,
// and sorts ascending by creation time (id as tiebreak for determinism).
func (t *Traverser) materialize(ctx context.Context, visited map[string]struct{}) ([]models.Message, error) {
	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	msgs, err := t.adj.GetMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
