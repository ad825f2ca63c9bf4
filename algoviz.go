// Package algoviz animates classic sorting, searching and grid pathfinding
// algorithms one observable step at a time.
//
// The Controller in this package owns the board and runs one algorithm at a
// time over it. This file re-exports the types a host needs most often from
// the core and runtime subpackages, so simple hosts can import a single
// package:
//
//	import "github.com/petal-labs/algoviz"
//
// Hosts that need more import the subpackages directly:
//
//	import "github.com/petal-labs/algoviz/core"
//	import "github.com/petal-labs/algoviz/runtime"
package algoviz

import (
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// =============================================================================
// Core Package Re-exports
// =============================================================================

type (
	// Algorithm identifies one of the supported step functions.
	Algorithm = core.Algorithm

	// Category groups algorithms by the board they run on.
	Category = core.Category

	// Cue is an abstract sound cue.
	Cue = core.Cue

	// Pos is a grid coordinate.
	Pos = core.Pos

	// Cell is one square of the grid.
	Cell = core.Cell

	// Grid is the pathfinding board.
	Grid = core.Grid
)

const (
	BubbleSort    = core.BubbleSort
	InsertionSort = core.InsertionSort
	SelectionSort = core.SelectionSort
	MergeSort     = core.MergeSort
	QuickSort     = core.QuickSort
	LinearSearch  = core.LinearSearch
	BinarySearch  = core.BinarySearch
	BFS           = core.BFS
	DFS           = core.DFS
	Dijkstra      = core.Dijkstra
	AStar         = core.AStar
)

var (
	// ParseAlgorithm resolves a slug, display name or alias.
	ParseAlgorithm = core.ParseAlgorithm

	// NewGrid creates a board with default endpoints.
	NewGrid = core.NewGrid
)

// =============================================================================
// Runtime Package Re-exports
// =============================================================================

type (
	// Event is a step notification.
	Event = runtime.Event

	// EventKind identifies the type of a step notification.
	EventKind = runtime.EventKind

	// EventHandler receives step notifications.
	EventHandler = runtime.EventHandler

	// RunStatus is the outcome carried by run.finished.
	RunStatus = runtime.RunStatus

	// Stats counts the observable steps of a run.
	Stats = runtime.Stats

	// Sinks are the host callbacks a run reports into.
	Sinks = runtime.Sinks

	// Highlight is the transient marker state of a run.
	Highlight = runtime.Highlight

	// Ticker suspends a run between steps.
	Ticker = runtime.Ticker
)

// ErrRunCanceled is returned for runs stopped through their context or
// Controller.Cancel.
var ErrRunCanceled = runtime.ErrRunCanceled
