// Package thread assembles bounded comment trees for display.
package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"forum/internal/store"
)

var ErrNotInPost = errors.New("comment does not belong to post")

type Sort string

const (
	SortPopularity Sort = "popularity"
	SortRecent     Sort = "recent"
)

// ParseSort maps a query value to a sort; anything unrecognised ranks by
// popularity.
func ParseSort(raw string) Sort {
	if Sort(strings.ToLower(strings.TrimSpace(raw))) == SortRecent {
		return SortRecent
	}
	return SortPopularity
}

// Ranker turns a sort into the SQL ORDER BY expression applied to siblings.
// Expressions refer to the comments table as c.
type Ranker func(Sort) string

func DefaultRanker(sort Sort) string {
	if sort == SortRecent {
		return "c.created_at DESC"
	}
	return "(c.score + c.reply_count) DESC, c.created_at DESC"
}

// Limits is the fan-out allowed at each level of a fetched tree; its length
// is the depth.
type Limits struct {
	TopLevel  []int
	SubThread []int
}

func DefaultLimits() Limits {
	return Limits{
		TopLevel:  []int{5, 3, 2},
		SubThread: []int{5, 2},
	}
}

type Request struct {
	PostID   string
	ParentID string
	Sort     Sort
	ViewerID string
}

type Node struct {
	store.CommentView
	Replies []*Node `json:"replies"`
	HasMore bool    `json:"hasMore"`
}

type Thread struct {
	Post     store.PostView `json:"post"`
	Root     *Node          `json:"root,omitempty"`
	Comments []*Node        `json:"comments"`
	Sort     Sort           `json:"sort"`
}

type commentSource interface {
	GetPost(ctx context.Context, id, viewerID string) (store.PostView, error)
	GetComment(ctx context.Context, id, viewerID string) (store.CommentView, error)
	ListCommentLevel(ctx context.Context, q store.LevelQuery) ([]store.CommentView, error)
}

type Aggregator struct {
	source commentSource
	limits Limits
	ranker Ranker
}

func NewAggregator(source commentSource, limits Limits, ranker Ranker) *Aggregator {
	if ranker == nil {
		ranker = DefaultRanker
	}
	defaults := DefaultLimits()
	if len(limits.TopLevel) == 0 {
		limits.TopLevel = defaults.TopLevel
	}
	if len(limits.SubThread) == 0 {
		limits.SubThread = defaults.SubThread
	}
	return &Aggregator{source: source, limits: limits, ranker: ranker}
}

// Fetch builds the comment tree for a post, or for the sub-thread under
// req.ParentID when set. Each level is one query; counters are read as
// stored.
func (a *Aggregator) Fetch(ctx context.Context, req Request) (Thread, error) {
	sort := ParseSort(string(req.Sort))
	post, err := a.source.GetPost(ctx, req.PostID, req.ViewerID)
	if err != nil {
		return Thread{}, fmt.Errorf("load post: %w", err)
	}
	thread := Thread{Post: post, Comments: []*Node{}, Sort: sort}

	limits := a.limits.TopLevel
	var frontier []*Node
	if req.ParentID != "" {
		root, err := a.source.GetComment(ctx, req.ParentID, req.ViewerID)
		if err != nil {
			return Thread{}, fmt.Errorf("load thread root: %w", err)
		}
		if root.PostID != post.ID {
			return Thread{}, fmt.Errorf("%w: %s", ErrNotInPost, req.ParentID)
		}
		thread.Root = newNode(root)
		frontier = []*Node{thread.Root}
		limits = a.limits.SubThread
	}

	order := a.ranker(sort)
	for depth, limit := range limits {
		query := store.LevelQuery{
			PostID:   post.ID,
			Order:    order,
			Limit:    limit,
			ViewerID: req.ViewerID,
		}
		topLevel := depth == 0 && thread.Root == nil
		if topLevel {
			query.TopLevel = true
		} else {
			if len(frontier) == 0 {
				break
			}
			query.ParentIDs = ids(frontier)
		}

		rows, err := a.source.ListCommentLevel(ctx, query)
		if err != nil {
			return Thread{}, fmt.Errorf("load comment level %d: %w", depth, err)
		}

		parents := make(map[string]*Node, len(frontier))
		for _, node := range frontier {
			parents[node.ID] = node
		}
		next := make([]*Node, 0, len(rows))
		for _, row := range rows {
			node := newNode(row)
			if topLevel {
				thread.Comments = append(thread.Comments, node)
			} else if parent, ok := parents[row.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
			} else {
				continue
			}
			next = append(next, node)
		}
		frontier = next
	}

	if thread.Root != nil {
		markHasMore(thread.Root)
	} else {
		for _, node := range thread.Comments {
			markHasMore(node)
		}
	}
	return thread, nil
}

func newNode(comment store.CommentView) *Node {
	return &Node{CommentView: comment, Replies: []*Node{}}
}

func markHasMore(node *Node) {
	node.HasMore = node.ReplyCount > len(node.Replies)
	for _, reply := range node.Replies {
		markHasMore(reply)
	}
}

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.ID)
	}
	return out
}
