package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReferenceGenerator issues human-readable visit and claim numbers such as
// VIS-20240301-1A2B3C4D5E. Numbers are unique per node id.
type ReferenceGenerator struct {
	node *snowflake.Node
}

func NewReferenceGenerator(nodeID int64) (*ReferenceGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("reference generator: %w", err)
	}
	return &ReferenceGenerator{node: node}, nil
}

func (g *ReferenceGenerator) Visit(now time.Time) string {
	return g.next("VIS", now)
}

func (g *ReferenceGenerator) Claim(now time.Time) string {
	return g.next("CLM", now)
}

func (g *ReferenceGenerator) next(prefix string, now time.Time) string {
	return prefix + "-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(g.node.Generate().Base36())
}
