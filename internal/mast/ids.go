package mast

import (
	"fmt"
	"math"
)

type (
	// NodeID indexes a node inside the Forest that allocated it.
	NodeID uint32
	// DecoratorID indexes a decorator inside the Forest that allocated it.
	DecoratorID uint32
)

const (
	// MaxNodes is the node capacity of a forest. Node ids must fit in the 30-bit
	// child fields of the binary node word.
	MaxNodes = 1<<30 - 1
	// MaxDecorators is the decorator capacity of a forest.
	MaxDecorators = math.MaxUint32
)

func (id NodeID) String() string      { return fmt.Sprintf("node#%d", uint32(id)) }
func (id DecoratorID) String() string { return fmt.Sprintf("decorator#%d", uint32(id)) }

// Index returns the id as a slice index.
func (id NodeID) Index() int { return int(id) }

// Index returns the id as a slice index.
func (id DecoratorID) Index() int { return int(id) }
