package core

import (
	"fmt"
	"strings"
)

// Algorithm is a closed enumeration of the algorithms the runner knows how
// to animate. The zero value is not a valid algorithm.
type Algorithm int

const (
	BubbleSort Algorithm = iota + 1
	InsertionSort
	SelectionSort
	MergeSort
	QuickSort
	LinearSearch
	BinarySearch
	BFS
	DFS
	Dijkstra
	AStar
)

type algorithmInfo struct {
	name       string
	slug       string
	category   Category
	pseudocode []string
}

var catalog = map[Algorithm]algorithmInfo{
	BubbleSort: {
		name:     "Bubble Sort",
		slug:     "bubble",
		category: CategorySorting,
		pseudocode: []string{
			"for i = 0 to n-2",
			"  for j = 0 to n-i-2",
			"    compare array[j] and array[j+1]",
			"    if array[j] > array[j+1] then swap",
			"end",
		},
	},
	InsertionSort: {
		name:     "Insertion Sort",
		slug:     "insertion",
		category: CategorySorting,
		pseudocode: []string{
			"for i = 1 to n-1",
			"  key = array[i]",
			"  j = i - 1",
			"  while j >= 0 and array[j] > key: array[j+1] = array[j]; j--",
			"  array[j+1] = key",
			"end",
		},
	},
	SelectionSort: {
		name:     "Selection Sort",
		slug:     "selection",
		category: CategorySorting,
		pseudocode: []string{
			"for i = 0 to n-2",
			"  min = i",
			"  for j = i+1 to n-1",
			"    if array[j] < array[min] then min = j",
			"  if min != i swap array[i], array[min]",
			"end",
		},
	},
	MergeSort: {
		name:     "Merge Sort",
		slug:     "merge",
		category: CategorySorting,
		pseudocode: []string{
			"mergeSort(l, r): if l >= r return",
			"  m = floor((l + r) / 2); mergeSort(l, m); mergeSort(m+1, r)",
			"  merge left and right",
			"end",
		},
	},
	QuickSort: {
		name:     "Quick Sort",
		slug:     "quick",
		category: CategorySorting,
		pseudocode: []string{
			"quickSort(lo, hi)",
			"  if lo >= hi return",
			"  p = partition(lo, hi)",
			"  quickSort(lo, p-1)",
			"  quickSort(p+1, hi)",
			"end",
			"partition(lo, hi):",
			"  pivot = arr[hi]",
			"  i = lo",
			"  for j = lo to hi-1",
			"    compare arr[j] with pivot",
			"    if arr[j] < pivot swap arr[i], arr[j]; i++",
			"  swap arr[i] and arr[hi]; return i",
		},
	},
	LinearSearch: {
		name:     "Linear Search",
		slug:     "linear",
		category: CategorySearching,
		pseudocode: []string{
			"for i = 0 to n-1",
			"  check array[i]",
			"  if array[i] == target then return i",
			"end for",
			"return -1",
		},
	},
	BinarySearch: {
		name:     "Binary Search",
		slug:     "binary",
		category: CategorySearching,
		pseudocode: []string{
			"low = 0, high = n - 1",
			"while low <= high",
			"  mid = floor((low + high) / 2)",
			"  check array[mid]",
			"  if array[mid] == target then return mid",
			"  else if array[mid] < target then low = mid + 1",
			"  else high = mid - 1",
			"end while",
			"return -1",
		},
	},
	BFS: {
		name:       "Breadth-First Search (BFS)",
		slug:       "bfs",
		category:   CategoryPathfinding,
		pseudocode: pathListing("init queue with start", "pop queue", "enqueue neighbors"),
	},
	DFS: {
		name:       "Depth-First Search (DFS)",
		slug:       "dfs",
		category:   CategoryPathfinding,
		pseudocode: pathListing("init stack with start", "pop stack", "push neighbors"),
	},
	Dijkstra: {
		name:       "Dijkstra",
		slug:       "dijkstra",
		category:   CategoryPathfinding,
		pseudocode: pathListing("init distances & pq", "pop smallest", "relax neighbours"),
	},
	AStar: {
		name:       "A* (A-Star)",
		slug:       "astar",
		category:   CategoryPathfinding,
		pseudocode: pathListing("init g/f scores & open set", "pop lowest f", "relax neighbours (with heuristic)"),
	},
}

// pathListing builds the eight-line listing shared by the pathfinders.
func pathListing(init, pop, expand string) []string {
	return []string{init, pop, "mark visited", expand, "reconstruct path", "mark path step", "no path", "done"}
}

// Pathfinding pseudocode line ids, shared by every pathfinder.
const (
	PathLineInit = iota
	PathLinePop
	PathLineVisit
	PathLineExpand
	PathLineReconstruct
	PathLineMark
	PathLineNoPath
	PathLineDone
)

// Algorithms returns every algorithm in catalog order.
func Algorithms() []Algorithm {
	return []Algorithm{
		BubbleSort, InsertionSort, SelectionSort, MergeSort, QuickSort,
		LinearSearch, BinarySearch,
		BFS, DFS, Dijkstra, AStar,
	}
}

// ByCategory returns the algorithms of one category in catalog order.
func ByCategory(c Category) []Algorithm {
	var out []Algorithm
	for _, a := range Algorithms() {
		if a.Category() == c {
			out = append(out, a)
		}
	}
	return out
}

// Valid reports whether a is a member of the enumeration.
func (a Algorithm) Valid() bool {
	_, ok := catalog[a]
	return ok
}

// String returns the display name, e.g. "Bubble Sort".
func (a Algorithm) String() string {
	if info, ok := catalog[a]; ok {
		return info.name
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Slug returns the short command-line name, e.g. "bubble".
func (a Algorithm) Slug() string {
	return catalog[a].slug
}

// Category returns the category the algorithm belongs to.
func (a Algorithm) Category() Category {
	return catalog[a].category
}

// Pseudocode returns a copy of the reference listing whose line ids the
// step functions report.
func (a Algorithm) Pseudocode() []string {
	src := catalog[a].pseudocode
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// MarshalText encodes the algorithm by slug.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(a))
	}
	return []byte(a.Slug()), nil
}

// UnmarshalText accepts anything ParseAlgorithm accepts.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAlgorithm resolves a display name or slug, ignoring case and
// surrounding whitespace. A few common aliases ("a*", "quicksort") are
// accepted as well.
func ParseAlgorithm(s string) (Algorithm, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, a := range Algorithms() {
		info := catalog[a]
		if needle == info.slug || needle == strings.ToLower(info.name) {
			return a, nil
		}
	}
	switch strings.NewReplacer(" ", "", "-", "", "_", "").Replace(needle) {
	case "bubblesort":
		return BubbleSort, nil
	case "insertionsort":
		return InsertionSort, nil
	case "selectionsort":
		return SelectionSort, nil
	case "mergesort":
		return MergeSort, nil
	case "quicksort":
		return QuickSort, nil
	case "linearsearch":
		return LinearSearch, nil
	case "binarysearch":
		return BinarySearch, nil
	case "breadthfirstsearch":
		return BFS, nil
	case "depthfirstsearch":
		return DFS, nil
	case "a*", "astarsearch":
		return AStar, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}
