package filter

import "testing"

func TestValidRejectsUnbalancedParens(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{`role == "observer"`, true},
		{`(role == "observer" && region != "eu")`, true},
		{`(role == "observer"`, false},
		{`role == "observer")`, false},
		{``, false},
		{`   `, false},
	}
	for _, c := range cases {
		if got := Expression(c.expr).Valid(); got != c.want {
			t.Errorf("Expression(%q).Valid() = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestCommaListJoinsTypes(t *testing.T) {
	got := CommaList("CHAT_TEXT", "GAME_STATE")
	if got.String() != "CHAT_TEXT,GAME_STATE" {
		t.Fatalf("CommaList = %q", got.String())
	}
}

func TestStringPassesThroughUnchanged(t *testing.T) {
	expr := Expression(`metadata.team == "red" || metadata.team == "blue"`)
	if expr.String() != string(expr) {
		t.Fatalf("String() did not pass through unchanged")
	}
}
