package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/extrunner/internal/changes"
)

func s(v string) *string { return &v }

func TestParse(t *testing.T) {
	for _, raw := range []string{"1.0.0", "0.0.1", "10.20.30", "01.2.3"} {
		_, ok := Parse(raw)
		assert.True(t, ok, raw)
	}
	for _, raw := range []string{"1.0", "v1.0.0", "1.0.0-beta", "1.0.0+build", "", "1.0.0.0", "99999999999999999999.0.0"} {
		_, ok := Parse(raw)
		assert.False(t, ok, raw)
	}
}

func TestGreaterThan(t *testing.T) {
	cases := []struct {
		newV, oldV string
		want       bool
	}{
		{"2.0.0", "1.9.9", true},
		{"1.10.0", "1.9.0", true},
		{"1.0.1", "1.0.0", true},
		{"1.0.0", "1.0.0", false},
		{"1.9.9", "2.0.0", false},
		{"1.2.3", "1.3.0", false},
	}
	for _, c := range cases {
		n, ok := Parse(c.newV)
		require.True(t, ok)
		o, ok := Parse(c.oldV)
		require.True(t, ok)
		assert.Equal(t, c.want, GreaterThan(n, o), "%s > %s", c.newV, c.oldV)
	}
}

func types(ws []changes.ExtensionWarning) []changes.WarningType {
	out := []changes.WarningType{}
	for _, w := range ws {
		out = append(out, w.Type)
	}
	return out
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name     string
		kind     changes.Kind
		old, new *string
		want     []changes.WarningType
	}{
		{"update upgrade", changes.KindUpdate, s("1.9.9"), s("2.0.0"), []changes.WarningType{}},
		{"update same", changes.KindUpdate, s("1.0.0"), s("1.0.0"),
			[]changes.WarningType{changes.WarnSameOrLowerVersion, changes.WarnSameOrLowerVersion}},
		{"update downgrade", changes.KindUpdate, s("2.0.0"), s("1.0.0"), []changes.WarningType{changes.WarnSameOrLowerVersion}},
		{"irregular", changes.KindUpdate, s("1.0.0"), s("1.0"), []changes.WarningType{changes.WarnIrregularVersion}},
		{"same irregular", changes.KindUpdate, s("1.0"), s("1.0"),
			[]changes.WarningType{changes.WarnSameOrLowerVersion, changes.WarnIrregularVersion}},
		{"missing", changes.KindAdd, nil, nil, []changes.WarningType{changes.WarnIrregularVersion}},
		{"add ignores old", changes.KindAdd, s("5.0.0"), s("1.0.0"), []changes.WarningType{}},
		{"old irregular", changes.KindUpdate, s("beta"), s("1.0.0"), []changes.WarningType{}},
		{"no old version", changes.KindUpdate, nil, s("0.1.0"), []changes.WarningType{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, types(Analyze(tt.kind, tt.old, tt.new)))
		})
	}
}

func TestAnalyze_Values(t *testing.T) {
	ws := Analyze(changes.KindUpdate, s("1.0.0"), s("1.0"))
	require.Len(t, ws, 1)
	require.NotNil(t, ws[0].Value)
	assert.Equal(t, "1.0", *ws[0].Value)

	ws = Analyze(changes.KindAdd, nil, nil)
	require.Len(t, ws, 1)
	assert.Nil(t, ws[0].Value)

	ws = Analyze(changes.KindUpdate, s("2.0.0"), s("1.5.0"))
	require.Len(t, ws, 1)
	assert.Equal(t, "2.0.0", ws[0].OldVersion)
	assert.Equal(t, "1.5.0", ws[0].NewVersion)
}
