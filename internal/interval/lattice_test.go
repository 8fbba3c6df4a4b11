package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntSetUnionMergesAdjacentRanges(t *testing.T) {
	a := IntRangeSet(0, 4)
	b := IntRangeSet(5, 9)
	u := a.Union(b)
	assert.Equal(t, []IntRange{{0, 9}}, u.Ranges, "adjacent ranges must merge into one")
}

func TestIntSetUnionKeepsDisjointRangesSeparate(t *testing.T) {
	a := IntRangeSet(0, 2)
	b := IntRangeSet(10, 12)
	u := a.Union(b)
	assert.Equal(t, []IntRange{{0, 2}, {10, 12}}, u.Ranges)
}

func TestIntSetIntersect(t *testing.T) {
	a := IntRangeSet(0, 10)
	b := IntRangeSet(5, 20)
	i := a.Intersect(b)
	assert.Equal(t, []IntRange{{5, 10}}, i.Ranges)
}

func TestIntSetIntersectEmptyWhenDisjoint(t *testing.T) {
	a := IntRangeSet(0, 2)
	b := IntRangeSet(10, 12)
	assert.True(t, a.Intersect(b).IsEmpty())
}

func TestIntSetWidenJumpsToInfinityOnGrowth(t *testing.T) {
	first := IntRangeSet(0, 0)
	second := IntRangeSet(0, 1)
	w := first.Widen(second)
	assert.Equal(t, int32(IntBoundMax), w.Ranges[0].Hi, "a growing upper bound widens straight to +inf")
	assert.Equal(t, int32(0), w.Ranges[0].Lo, "the stable lower bound is untouched")
}

func TestIntSetWidenStableDoesNotGrow(t *testing.T) {
	a := IntRangeSet(0, 5)
	w := a.Widen(a)
	assert.Equal(t, a.Ranges, w.Ranges)
}

func TestIntSetAddRespectsOverflowToTop(t *testing.T) {
	near := IntRangeSet(IntBoundMax-1, IntBoundMax)
	one := IntConst(1)
	sum := near.Add(one)
	assert.Equal(t, int32(IntBoundMax), sum.Ranges[0].Hi, "an overflowing add collapses to the full range")
	assert.Equal(t, int32(IntBoundMin), sum.Ranges[0].Lo)
}

func TestIntSetDivByRangeStraddlingZeroIsTop(t *testing.T) {
	a := IntConst(10)
	divisor := IntRangeSet(-1, 1)
	out := a.Div(divisor)
	assert.Equal(t, IntTop().Ranges, out.Ranges, "dividing by a range that could be zero must be conservative")
}

func TestIntSetUndefinedIsIdentityForUnion(t *testing.T) {
	u := IntUndefined()
	c := IntConst(3)
	assert.Equal(t, c, u.Union(c), "undefined (not-yet-visited) unions away to the other operand")
}

func TestFloatSetIntersect(t *testing.T) {
	a := FloatRangeSet(0, 10)
	b := FloatRangeSet(5, 20)
	i := a.Intersect(b)
	assert.Equal(t, []FloatRange{{5, 10}}, i.Ranges)
}

func TestIntSetToFloatAndBack(t *testing.T) {
	i := IntRangeSet(2, 5)
	f := i.ToFloat()
	assert.Equal(t, []FloatRange{{2, 5}}, f.Ranges)
	back := f.ToInt()
	assert.Equal(t, []IntRange{{2, 5}}, back.Ranges)
}
