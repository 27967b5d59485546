package builtin

import _ "embed"

//go:embed single_shot.md
var SingleShot string

//go:embed multi_turn.md
var MultiTurn string

// Specs maps the language-spec keys named in spec 4.5 ("single_shot
// when max_turns == 1, multi_turn otherwise, or the caller's
// override") to their prose blocks.
var Specs = map[string]string{
	"single_shot": SingleShot,
	"multi_turn":  MultiTurn,
}
