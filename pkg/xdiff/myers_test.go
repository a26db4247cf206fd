package xdiff

import (
	"reflect"
	"testing"
)

func countMarks(marks []bool) int {
	n := 0
	for _, m := range marks {
		if m {
			n++
		}
	}
	return n
}

func TestEditScript_ReplaceMiddle(t *testing.T) {
	delA, insB := editScript([]int{1, 2, 3}, []int{1, 4, 3})
	if want := []bool{false, true, false}; !reflect.DeepEqual(delA, want) {
		t.Fatalf("delA = %v, want %v", delA, want)
	}
	if want := []bool{false, true, false}; !reflect.DeepEqual(insB, want) {
		t.Fatalf("insB = %v, want %v", insB, want)
	}
}

func TestEditScript_EmptySides(t *testing.T) {
	delA, insB := editScript(nil, []int{1, 2})
	if len(delA) != 0 || countMarks(insB) != 2 {
		t.Fatalf("editScript(nil, 2 lines) = %v, %v", delA, insB)
	}
	delA, insB = editScript([]int{1, 2}, nil)
	if countMarks(delA) != 2 || len(insB) != 0 {
		t.Fatalf("editScript(2 lines, nil) = %v, %v", delA, insB)
	}
}

func TestEditScript_Identical(t *testing.T) {
	a := []int{1, 2, 3}
	delA, insB := editScript(a, a)
	if countMarks(delA) != 0 || countMarks(insB) != 0 {
		t.Fatalf("identical input marked edits: %v, %v", delA, insB)
	}
}

func TestEditScript_Shortest(t *testing.T) {
	// ABCABBA -> CBABAC has a longest common subsequence of 4.
	a := []int{'A', 'B', 'C', 'A', 'B', 'B', 'A'}
	b := []int{'C', 'B', 'A', 'B', 'A', 'C'}
	delA, insB := editScript(a, b)
	if got := countMarks(delA) + countMarks(insB); got != 5 {
		t.Fatalf("edit script has %d edits, want 5", got)
	}
	var keptA, keptB []int
	for i, d := range delA {
		if !d {
			keptA = append(keptA, a[i])
		}
	}
	for j, ins := range insB {
		if !ins {
			keptB = append(keptB, b[j])
		}
	}
	if !reflect.DeepEqual(keptA, keptB) {
		t.Fatalf("unmarked lines differ: %v vs %v", keptA, keptB)
	}
}

func TestTextDiff_HunkOffsets(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want []Hunk
	}{
		{"replace", "a\nb\nc\n", "a\nx\nc\n", []Hunk{{Start: 2, End: 4, Data: []byte("x\n")}}},
		{"delete", "a\nb\nc\n", "a\nc\n", []Hunk{{Start: 2, End: 4}}},
		{"append", "a\n", "a\nb\n", []Hunk{{Start: 2, End: 2, Data: []byte("b\n")}}},
		{"missing newline", "a\nb", "a\nb\n", []Hunk{{Start: 2, End: 3, Data: []byte("b\n")}}},
		{"identical", "a\nb\n", "a\nb\n", nil},
	}
	for _, tt := range tests {
		got := TextDiff([]byte(tt.a), []byte(tt.b))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: TextDiff = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}
