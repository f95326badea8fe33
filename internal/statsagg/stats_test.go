package statsagg

import (
	"math"
	"testing"
)

func TestParseDistance(t *testing.T) {
	fields := []string{"awp", "killer1", "ct", "0", "0", "x", "x", "x", "x", "x", "3", "4"}
	dist, ok := parseDistance(fields, 3, 4, 10, 11)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if dist != 5 {
		t.Errorf("expected distance 5, got %v", dist)
	}
}

func TestParseDistanceShortRow(t *testing.T) {
	fields := []string{"awp", "killer1"}
	if _, ok := parseDistance(fields, 3, 4, 10, 11); ok {
		t.Errorf("expected ok=false for a row too short to hold victim coordinates")
	}
}

func TestParseDistanceNonNumeric(t *testing.T) {
	fields := []string{"awp", "killer1", "ct", "x", "0", "x", "x", "x", "x", "x", "3", "4"}
	if _, ok := parseDistance(fields, 3, 4, 10, 11); ok {
		t.Errorf("expected ok=false when a coordinate field doesn't parse as a float")
	}
}

func TestRoundTo(t *testing.T) {
	cases := []struct {
		v      float64
		places int
		want   float64
	}{
		{33.333333, 2, 33.33},
		{33.335, 2, 33.34},
		{10.0 / 3.0, 2, 3.33},
		{0, 2, 0},
	}
	for _, c := range cases {
		if got := roundTo(c.v, c.places); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("roundTo(%v, %d) = %v, want %v", c.v, c.places, got, c.want)
		}
	}
}

func TestUpdateStatsFromLine(t *testing.T) {
	local := make(map[string]*PlayerStats)
	updateStatsFromLine("awp,alice,ct,0,0,x,x,x,x,x,3,4", local)
	updateStatsFromLine("knife,alice,ct,0,0,x,x,x,x,x,0,0", local)
	updateStatsFromLine("awp,bob,t,0,0,x,x,x,x,x,0,0", local)
	updateStatsFromLine("", local)

	alice, ok := local["alice"]
	if !ok {
		t.Fatalf("expected an entry for alice")
	}
	if alice.Deaths != 2 {
		t.Errorf("expected alice.Deaths = 2, got %d", alice.Deaths)
	}
	awp := alice.UsedWeapons["awp"]
	if awp == nil || awp.Deaths != 1 {
		t.Fatalf("expected one awp kill for alice")
	}
	if awp.ValidDistancesCount != 1 || awp.TotalDistance != 5 {
		t.Errorf("expected one valid distance of 5, got count=%d total=%v", awp.ValidDistancesCount, awp.TotalDistance)
	}

	if _, ok := local["bob"]; !ok {
		t.Errorf("expected an entry for bob")
	}
	if len(local) != 2 {
		t.Errorf("expected exactly 2 players, got %d", len(local))
	}
}

func TestUpdateStatsFromLineSkipsBlankKiller(t *testing.T) {
	local := make(map[string]*PlayerStats)
	updateStatsFromLine("awp,,ct,0,0,x,x,x,x,x,0,0", local)
	if len(local) != 0 {
		t.Errorf("expected a blank killer field to be skipped, got %d entries", len(local))
	}
}

func TestMergeInto(t *testing.T) {
	final := make(map[string]*PlayerStats)
	a := newPlayerStats()
	a.Deaths = 2
	a.UsedWeapons["awp"] = &WeaponStats{Deaths: 2, ValidDistancesCount: 1, TotalDistance: 10}
	mergeInto(final, map[string]*PlayerStats{"alice": a})

	b := newPlayerStats()
	b.Deaths = 1
	b.UsedWeapons["awp"] = &WeaponStats{Deaths: 1, ValidDistancesCount: 1, TotalDistance: 4}
	mergeInto(final, map[string]*PlayerStats{"alice": b})

	alice := final["alice"]
	if alice.Deaths != 3 {
		t.Errorf("expected merged deaths = 3, got %d", alice.Deaths)
	}
	awp := alice.UsedWeapons["awp"]
	if awp.Deaths != 3 || awp.ValidDistancesCount != 2 || awp.TotalDistance != 14 {
		t.Errorf("unexpected merged weapon stats: %+v", awp)
	}
}

func TestTopKillersExcludesBlankName(t *testing.T) {
	deathsInfo := map[string]*PlayerStats{
		"alice": {Deaths: 5, UsedWeapons: map[string]*WeaponStats{"awp": {Deaths: 5}}},
		"bob":   {Deaths: 5, UsedWeapons: map[string]*WeaponStats{"knife": {Deaths: 5}}},
		"carol": {Deaths: 7, UsedWeapons: map[string]*WeaponStats{"ak47": {Deaths: 7}}},
		"":      {Deaths: 100, UsedWeapons: map[string]*WeaponStats{}},
	}
	out := topKillers(deathsInfo)

	if len(out) != 3 {
		t.Fatalf("expected the blank killer name to be excluded, got %d entries", len(out))
	}
	if out["carol"].Deaths != 7 {
		t.Errorf("expected carol's death count preserved, got %d", out["carol"].Deaths)
	}
	if _, ok := out[""]; ok {
		t.Errorf("blank-named killer should never appear in the summary")
	}
}

func TestTopKillersCapsAtTen(t *testing.T) {
	deathsInfo := make(map[string]*PlayerStats)
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	for i, name := range names {
		deathsInfo[name] = &PlayerStats{Deaths: uint32(i + 1), UsedWeapons: map[string]*WeaponStats{}}
	}
	out := topKillers(deathsInfo)
	if len(out) != 10 {
		t.Errorf("expected top-10 cap, got %d entries", len(out))
	}
}

func TestPlayerWeaponPercentageTopThree(t *testing.T) {
	weapons := map[string]*WeaponStats{
		"awp":   {Deaths: 5},
		"knife": {Deaths: 3},
		"ak47":  {Deaths: 1},
		"glock": {Deaths: 1},
	}
	out := playerWeaponPercentage(weapons, 10)
	if len(out) != 3 {
		t.Fatalf("expected exactly 3 weapons in the percentage breakdown, got %d", len(out))
	}
	if out["awp"] != 50 {
		t.Errorf("expected awp at 50%%, got %v", out["awp"])
	}
	if out["knife"] != 30 {
		t.Errorf("expected knife at 30%%, got %v", out["knife"])
	}
}

func TestPlayerWeaponPercentageZeroKills(t *testing.T) {
	out := playerWeaponPercentage(map[string]*WeaponStats{"awp": {Deaths: 1}}, 0)
	if len(out) != 0 {
		t.Errorf("expected an empty breakdown when totalKills is 0, got %v", out)
	}
}

func TestTopWeaponsSkipsZeroTotalDeaths(t *testing.T) {
	weapons := map[string]*WeaponStats{"awp": {Deaths: 3}}
	out := topWeapons(weapons, 0)
	if len(out) != 0 {
		t.Errorf("expected no weapons summarized when totalDeaths is 0, got %v", out)
	}
}

func TestTopWeaponsComputesPercentageAndAverageDistance(t *testing.T) {
	weapons := map[string]*WeaponStats{
		"awp": {Deaths: 4, ValidDistancesCount: 2, TotalDistance: 30},
	}
	out := topWeapons(weapons, 8)
	awp, ok := out["awp"]
	if !ok {
		t.Fatalf("expected an awp entry")
	}
	if awp.DeathsPercentage != 50 {
		t.Errorf("expected 50%%, got %v", awp.DeathsPercentage)
	}
	if awp.AverageDistance != 15 {
		t.Errorf("expected average distance 15, got %v", awp.AverageDistance)
	}
}

func TestAverageDistanceNoValidSamples(t *testing.T) {
	if got := averageDistance(0, 42); got != 0 {
		t.Errorf("expected 0 with no valid distance samples, got %v", got)
	}
}
