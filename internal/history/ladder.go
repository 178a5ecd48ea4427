package history

import (
	"fmt"
	"sort"
	"strings"
)

// Message is the subset of a network message's shape the ladder diagram
// needs: who it is from, who it is to, and how to render it inline.
type Message interface {
	From() string
	To() string
	String() string
}

// Forwarded is implemented by messages that were re-sent by an intermediate
// node rather than sent directly by their original sender (see
// network.Envelope.ForwardedFrom).
type Forwarded interface {
	Message
	ForwardedFrom() (string, bool)
}

// ContentsProvider is implemented by nodes that can report their locally
// stored keys for the diagram's trailing contents block.
type ContentsProvider interface {
	Name() string
	Contents() []string
}

// Ladder renders the recorded history as an ASCII sequence diagram, one
// column per node, time flowing top to bottom. Sends draw a horizontal
// line out to a free column, where a vertical line waits until the
// matching deliver, drop, or cut event closes it off.
func (h *History) Ladder(spacing int, nodes []ContentsProvider, forceInclude []string) string {
	if spacing <= 0 {
		spacing = 20
	}

	nodelist := h.nodelist(forceInclude)
	numNodes := len(nodelist)
	if numNodes == 0 {
		return ""
	}
	linelen := ((numNodes-1)*(spacing+1) + 1)

	column := make(map[string]int, numNodes)
	for i, n := range nodelist {
		column[n] = i * (spacing + 1)
	}

	vertlines := make(map[any]int)
	failedNodes := make(map[string]bool)
	includedNodes := make(map[string]bool)

	var lines []string
	lines = append(lines, headerLine(nodelist, spacing))

	for _, e := range h.events {
		line := make([]rune, linelen)
		for i := range line {
			line[i] = ' '
		}
		for node, col := range column {
			if includedNodes[node] {
				if failedNodes[node] {
					line[col] = 'x'
				} else {
					line[col] = '.'
				}
			}
		}
		for _, col := range vertlines {
			line[col] = '|'
		}

		emit := true

		switch e.Action {
		case Send, Forward:
			msg, ok := e.Obj.(Message)
			if !ok {
				continue
			}
			fromNode := msg.From()
			startMarker := 'o'
			if e.Action == Forward {
				if fwd, ok := msg.(Forwarded); ok {
					if intermediate, was := fwd.ForwardedFrom(); was {
						fromNode = intermediate
					}
				}
				startMarker = '+'
			}
			toNode := msg.To()
			vertcol := pickColumn(vertlines, column, column[fromNode], column[toNode])
			vertlines[msg] = vertcol
			left2right := column[fromNode] < vertcol
			line = drawHoriz(line, column[fromNode], startMarker, vertcol, '+')
			msgtext := msg.String()
			if left2right {
				line = writeText(line, vertcol+1, " "+msgtext)
			} else if len(msgtext) > vertcol {
				line = writeText(line, column[fromNode]+1, " "+msgtext)
			} else {
				line = writeText(line, vertcol-len(msgtext)-1, msgtext+" ")
			}

		case Deliver, Drop:
			msg, ok := e.Obj.(Message)
			if !ok {
				continue
			}
			vertcol, ok := vertlines[msg]
			if !ok {
				continue
			}
			delete(vertlines, msg)
			left2right := vertcol < column[msg.To()]
			startMarker := '+'
			endMarker := '<'
			if e.Action == Drop {
				endMarker = 'X'
			} else if left2right {
				endMarker = '>'
			}
			line = drawHoriz(line, vertcol, startMarker, column[msg.To()], endMarker)

		case Cut:
			msg, ok := e.Obj.(Message)
			if !ok {
				continue
			}
			vertcol, ok := vertlines[msg]
			if !ok {
				continue
			}
			delete(vertlines, msg)
			line[vertcol] = 'X'

		case Fail:
			name, _ := e.Obj.(string)
			if col, ok := column[name]; ok {
				line = writeCenter(line, col, "FAIL")
				failedNodes[name] = true
			} else {
				continue
			}

		case Recover:
			name, _ := e.Obj.(string)
			if col, ok := column[name]; ok {
				line = writeCenter(line, col, "RECOVER")
				delete(failedNodes, name)
			} else {
				continue
			}

		case Remove:
			name, _ := e.Obj.(string)
			delete(includedNodes, name)
			emit = false

		case Add:
			name, _ := e.Obj.(string)
			includedNodes[name] = true
			emit = false

		case Announce:
			text, _ := e.Obj.(string)
			indent := strings.Repeat("*", max(0, (linelen-len(text)-4)/2))
			lines = append(lines, fmt.Sprintf(" %s %s %s ", indent, text, indent))
			emit = false

		default:
			continue
		}

		if emit {
			lines = append(lines, string(line))
		}
	}

	lines = append(lines, headerLine(nodelist, spacing))

	longest := 0
	contents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		c := n.Contents()
		contents[n.Name()] = c
		if len(c) > longest {
			longest = len(c)
		}
	}
	for i := 0; i < longest; i++ {
		line := make([]rune, linelen)
		for j := range line {
			line[j] = ' '
		}
		for name, col := range column {
			if c := contents[name]; i < len(c) {
				line = writeCenter(line, col, c[i])
			}
		}
		lines = append(lines, string(line))
	}

	return strings.Join(lines, "\n")
}

func (h *History) nodelist(forceInclude []string) []string {
	set := make(map[string]bool)
	for _, e := range h.events {
		if e.Action != Send && e.Action != Forward {
			continue
		}
		msg, ok := e.Obj.(Message)
		if !ok {
			continue
		}
		set[msg.From()] = true
		set[msg.To()] = true
	}
	for _, n := range forceInclude {
		set[n] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func headerLine(nodelist []string, spacing int) string {
	spacer := strings.Repeat(" ", spacing)
	return strings.Join(nodelist, spacer)
}

// pickColumn chooses a free column strictly between from_col and to_col
// (walking away from from_col when they're equal), avoiding any column
// already in use by a vertical line or a node column.
func pickColumn(vertlines map[any]int, columns map[string]int, fromCol, toCol int) int {
	notAllowed := make(map[int]bool)
	for _, c := range vertlines {
		notAllowed[c] = true
	}
	for _, c := range columns {
		notAllowed[c] = true
	}

	var candidate, delta int
	switch {
	case fromCol == toCol:
		if fromCol == 0 {
			candidate, delta = fromCol+1, 1
		} else {
			candidate, delta = fromCol-1, -1
		}
	case fromCol < toCol:
		candidate, delta = fromCol+1, 1
	default:
		candidate, delta = fromCol-1, -1
	}
	for candidate != toCol {
		if !notAllowed[candidate] {
			return candidate
		}
		candidate += delta
	}
	return candidate
}

func drawHoriz(line []rune, fromCol int, fromChar rune, toCol int, toChar rune) []rune {
	line[fromCol] = fromChar
	line[toCol] = toChar
	left, right := fromCol+1, toCol
	if fromCol > toCol {
		left, right = toCol+1, fromCol
	}
	for i := left; i < right; i++ {
		line[i] = '-'
	}
	return line
}

func writeText(line []rune, col int, text string) []rune {
	needed := col + len(text)
	for len(line) < needed {
		line = append(line, ' ')
	}
	for _, c := range text {
		line[col] = c
		col++
	}
	return line
}

func writeCenter(line []rune, col int, text string) []rune {
	if col > len(text)/2 {
		col -= len(text) / 2
	}
	return writeText(line, col, text)
}
