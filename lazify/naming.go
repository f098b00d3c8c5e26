package lazify

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/DanielAugusto191/wyvern/flowgraph"
)

// namePrefix matches the original pass's own generated-name prefix
// (_wyvern_slice_..., _wyvern_slice_memo_...), so a function outlined
// by this package is recognizable by name alone downstream.
const namePrefix = "_wyvern"

// defaultNameFunc produces a name unique within the module without a
// global counter, replacing the original pass's
// std::random_device+std::mt19937 draw with a UUIDv4 suffix.
func defaultNameFunc(base string) string {
	id := uuid.New()
	return base + "_" + id.String()[:8]
}

// sliceName builds the outlined function's base name: namePrefix +
// "_slice_" (or "_slice_memo_" when memo is set) + the caller's name
// + the seed's own name, mirroring the original's
// `_wyvern_slice_<caller>_<seed>` / `_wyvern_slice_memo_<caller>_<seed>`
// convention so a name alone tells a driver both that a function is
// generated and whether forcing it is memoized. cfg.nameFunc then
// appends the random, module-unique suffix (see defaultNameFunc).
func sliceName(caller string, seed flowgraph.Value, memo bool) string {
	tag := "slice"
	if memo {
		tag = "slice_memo"
	}
	return namePrefix + "_" + tag + "_" + caller + "_" + seedName(seed)
}

// seedName derives a short label for the slice's seed value: its
// source parameter name when the IR carries one, or its SSA number
// otherwise — an Op, Phi, or Load result has no name of its own,
// only its SSA number in the caller.
func seedName(seed flowgraph.Value) string {
	if p, ok := seed.(*flowgraph.Parm); ok && p.Def != nil && p.Def.Name != "" {
		return p.Def.Name
	}
	n := seed.Num()
	if n < 0 {
		n = -n
	}
	return "v" + strconv.Itoa(n)
}
