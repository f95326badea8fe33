// Package statsagg is a standalone batch job, unrelated to the ride-dispatch
// ring: it reads a directory of kill-event CSV files and aggregates
// per-player and per-weapon death statistics.
//
// Grounded on original_source/tp1/src/data_processing/data_processor.rs's
// rayon thread-pool map/reduce; translated to the teacher's channel-router
// idiom (MatchingService.processDriverResponses's "fixed worker pool
// feeding a single aggregation goroutine") instead of a data-parallel
// library, since the pack carries no rayon-equivalent.
package statsagg

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// WeaponStats accumulates kills attributed to one weapon.
type WeaponStats struct {
	Deaths              uint32
	ValidDistancesCount uint32
	TotalDistance       float64
}

// PlayerStats accumulates kills attributed to one player, broken down by
// weapon.
type PlayerStats struct {
	UsedWeapons map[string]*WeaponStats
	Deaths      uint32
}

func newPlayerStats() *PlayerStats {
	return &PlayerStats{UsedWeapons: make(map[string]*WeaponStats)}
}

// WeaponStatsSummary is the top-N-weapons view (§9 supplemented feature).
type WeaponStatsSummary struct {
	DeathsPercentage float64 `json:"deaths_percentage"`
	AverageDistance  float64 `json:"average_distance"`
}

// PlayerStatsSummary is the top-N-killers view.
type PlayerStatsSummary struct {
	Deaths            uint32             `json:"deaths"`
	WeaponsPercentage map[string]float64 `json:"weapons_percentage"`
}

// DeathsInfoSummary is the final aggregate written to the output file.
type DeathsInfoSummary struct {
	TopKillers map[string]PlayerStatsSummary `json:"top_killers"`
	TopWeapons map[string]WeaponStatsSummary `json:"top_weapons"`
}

// ProcessDirectory runs the full map/reduce pipeline over every .csv file in
// dirPath, using numWorkers goroutines, and returns the summarized result.
func ProcessDirectory(dirPath string, numWorkers int, log *logrus.Logger) (DeathsInfoSummary, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "statsagg")

	files, err := collectCSVFiles(dirPath)
	if err != nil {
		return DeathsInfoSummary{}, err
	}
	entry.WithField("file_count", len(files)).Info("processing kill-event files")

	merged := processFiles(files, numWorkers, entry)
	return summarize(merged), nil
}

func collectCSVFiles(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		paths = append(paths, filepath.Join(dirPath, e.Name()))
	}
	return paths, nil
}

// processFiles fans work items (file paths) out to numWorkers goroutines and
// fans their per-file maps back into one reduce goroutine — the teacher's
// channel-router shape, applied to a map/reduce instead of ride matching.
func processFiles(paths []string, numWorkers int, log *logrus.Entry) map[string]*PlayerStats {
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan string, len(paths))
	results := make(chan map[string]*PlayerStats, len(paths))

	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				stats, err := processFile(path)
				if err != nil {
					log.WithError(err).WithField("file", path).Warn("failed to process file")
					results <- map[string]*PlayerStats{}
					continue
				}
				results <- stats
			}
		}()
	}
	for _, p := range paths {
		jobs <- p
	}
	close(jobs)

	merged := make(map[string]*PlayerStats)
	for range paths {
		mergeInto(merged, <-results)
	}
	return merged
}

// processFile reads one CSV file, skipping its header line, and accumulates
// per-player/per-weapon stats. Malformed lines are skipped, not fatal.
func processFile(path string) (map[string]*PlayerStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	local := make(map[string]*PlayerStats)
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		updateStatsFromLine(scanner.Text(), local)
	}
	return local, scanner.Err()
}

// updateStatsFromLine parses one CSV record:
// weapon,killer,...,killer_x,killer_y,...(5 fields),victim_x,victim_y,...
// matching the source's field layout (fields.nth(1), next, nth(5), next).
func updateStatsFromLine(line string, local map[string]*PlayerStats) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return
	}
	weaponName, killerName := fields[0], fields[1]
	if killerName == "" {
		return
	}

	player, ok := local[killerName]
	if !ok {
		player = newPlayerStats()
		local[killerName] = player
	}
	player.Deaths++

	weapon, ok := player.UsedWeapons[weaponName]
	if !ok {
		weapon = &WeaponStats{}
		player.UsedWeapons[weaponName] = weapon
	}
	weapon.Deaths++

	// index 2 is skipped (fields.nth(1) consumes index 2), 3 is killer_x,
	// 4 is killer_y, then nth(5) skips indices 5-9, 10 is victim_x, 11 is victim_y.
	if dist, ok := parseDistance(fields, 3, 4, 10, 11); ok {
		weapon.TotalDistance += dist
		weapon.ValidDistancesCount++
	}
}

func parseDistance(fields []string, kx, ky, vx, vy int) (float64, bool) {
	if vy >= len(fields) {
		return 0, false
	}
	kxf, err1 := strconv.ParseFloat(fields[kx], 64)
	kyf, err2 := strconv.ParseFloat(fields[ky], 64)
	vxf, err3 := strconv.ParseFloat(fields[vx], 64)
	vyf, err4 := strconv.ParseFloat(fields[vy], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, false
	}
	dx, dy := kxf-vxf, kyf-vyf
	return math.Sqrt(dx*dx + dy*dy), true
}

func mergeInto(final, local map[string]*PlayerStats) {
	for name, stats := range local {
		target, ok := final[name]
		if !ok {
			target = newPlayerStats()
			final[name] = target
		}
		target.Deaths += stats.Deaths
		for weapon, wstats := range stats.UsedWeapons {
			t, ok := target.UsedWeapons[weapon]
			if !ok {
				t = &WeaponStats{}
				target.UsedWeapons[weapon] = t
			}
			t.Deaths += wstats.Deaths
			t.TotalDistance += wstats.TotalDistance
			t.ValidDistancesCount += wstats.ValidDistancesCount
		}
	}
}

// summarize computes the top-10 killers and top-10 weapons views.
func summarize(deathsInfo map[string]*PlayerStats) DeathsInfoSummary {
	weaponTotals := computeWeaponTotals(deathsInfo)
	var totalDeaths uint32
	for _, w := range weaponTotals {
		totalDeaths += w.Deaths
	}

	return DeathsInfoSummary{
		TopKillers: topKillers(deathsInfo),
		TopWeapons: topWeapons(weaponTotals, totalDeaths),
	}
}

func computeWeaponTotals(deathsInfo map[string]*PlayerStats) map[string]*WeaponStats {
	totals := make(map[string]*WeaponStats)
	for _, player := range deathsInfo {
		for weapon, stats := range player.UsedWeapons {
			t, ok := totals[weapon]
			if !ok {
				t = &WeaponStats{}
				totals[weapon] = t
			}
			t.Deaths += stats.Deaths
			t.TotalDistance += stats.TotalDistance
			t.ValidDistancesCount += stats.ValidDistancesCount
		}
	}
	return totals
}

func topKillers(deathsInfo map[string]*PlayerStats) map[string]PlayerStatsSummary {
	type entry struct {
		name  string
		stats *PlayerStats
	}
	var sorted []entry
	for name, stats := range deathsInfo {
		if name == "" {
			continue
		}
		sorted = append(sorted, entry{name, stats})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].stats.Deaths != sorted[j].stats.Deaths {
			return sorted[i].stats.Deaths > sorted[j].stats.Deaths
		}
		return sorted[i].name < sorted[j].name
	})

	out := make(map[string]PlayerStatsSummary)
	for i, e := range sorted {
		if i >= 10 {
			break
		}
		out[e.name] = PlayerStatsSummary{
			Deaths:            e.stats.Deaths,
			WeaponsPercentage: playerWeaponPercentage(e.stats.UsedWeapons, e.stats.Deaths),
		}
	}
	return out
}

func playerWeaponPercentage(weapons map[string]*WeaponStats, totalKills uint32) map[string]float64 {
	out := make(map[string]float64)
	if totalKills == 0 {
		return out
	}
	sorted := sortWeaponsByKills(weapons)
	for i, w := range sorted {
		if i >= 3 {
			break
		}
		out[w.name] = roundTo(float64(w.stats.Deaths)/float64(totalKills)*100, 2)
	}
	return out
}

func topWeapons(weapons map[string]*WeaponStats, totalDeaths uint32) map[string]WeaponStatsSummary {
	sorted := sortWeaponsByKills(weapons)
	out := make(map[string]WeaponStatsSummary)
	for i, w := range sorted {
		if i >= 10 {
			break
		}
		if totalDeaths == 0 {
			continue
		}
		out[w.name] = WeaponStatsSummary{
			DeathsPercentage: roundTo(float64(w.stats.Deaths)/float64(totalDeaths)*100, 2),
			AverageDistance:  averageDistance(w.stats.ValidDistancesCount, w.stats.TotalDistance),
		}
	}
	return out
}

type weaponEntry struct {
	name  string
	stats *WeaponStats
}

func sortWeaponsByKills(weapons map[string]*WeaponStats) []weaponEntry {
	var sorted []weaponEntry
	for name, stats := range weapons {
		sorted = append(sorted, weaponEntry{name, stats})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].stats.Deaths != sorted[j].stats.Deaths {
			return sorted[i].stats.Deaths > sorted[j].stats.Deaths
		}
		return sorted[i].name < sorted[j].name
	})
	return sorted
}

func averageDistance(validCount uint32, total float64) float64 {
	if validCount == 0 {
		return 0
	}
	return roundTo(total/float64(validCount), 2)
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
