package bbref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/janus/internal/pbp"
)

var (
	teamCode   = regexp.MustCompile(`[A-Z]{3}`)
	heightMass = regexp.MustCompile(`(\d+)\s*cm,?\s*(\d+)\s*kg`)
	seasonText = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// ParseBoxScore reads every team's basic box score. Rows of players who did not play
// are dropped; the totals row is kept and flagged.
func ParseBoxScore(gameID string, doc *goquery.Document) (*pbp.BoxScore, error) {
	box := &pbp.BoxScore{GameID: gameID, Teams: make(map[string][]pbp.BoxScoreLine)}

	doc.Find("table[id]").Each(func(_ int, t *goquery.Selection) {
		id, _ := t.Attr("id")
		if !strings.Contains(id, "game-basic") {
			return
		}
		team := teamCode.FindString(id)
		if team == "" {
			return
		}

		var lines []pbp.BoxScoreLine
		t.Find("tbody tr, tfoot tr").Each(func(_ int, tr *goquery.Selection) {
			if line, ok := parseBoxRow(tr); ok {
				lines = append(lines, line)
			}
		})
		box.Teams[team] = lines
	})

	if len(box.Teams) == 0 {
		return nil, fmt.Errorf("%w: no basic tables for %s", pbp.ErrNoBoxScore, gameID)
	}
	return box, nil
}

func parseBoxRow(tr *goquery.Selection) (pbp.BoxScoreLine, bool) {
	th := tr.Find("th").First()
	name := strings.TrimSpace(th.Text())
	mp := strings.TrimSpace(tr.Find(`td[data-stat="mp"]`).Text())
	if mp == "" || mp == "MP" || strings.Contains(strings.ToLower(mp), "not") {
		return pbp.BoxScoreLine{}, false
	}
	minutes, ok := ParseMinutes(mp)
	if !ok {
		return pbp.BoxScoreLine{}, false
	}

	if name == "Team Totals" {
		return pbp.BoxScoreLine{PlayerID: name, Minutes: minutes, Totals: true}, true
	}
	id, ok := th.Attr("data-append-csv")
	if !ok || id == "" {
		return pbp.BoxScoreLine{}, false
	}
	return pbp.BoxScoreLine{PlayerID: id, Minutes: minutes}, true
}

// ParseMinutes converts "mm:ss" or "mm" into decimal minutes.
func ParseMinutes(s string) (float64, bool) {
	mins, secs, found := strings.Cut(strings.TrimSpace(s), ":")
	m, err := strconv.Atoi(mins)
	if err != nil {
		return 0, false
	}
	if !found {
		return float64(m), true
	}
	sec, err := strconv.Atoi(secs)
	if err != nil {
		return 0, false
	}
	return float64(m) + float64(sec)/60, true
}

// ParsePlayer reads the biography, team history and salary history of a player page.
func ParsePlayer(id string, doc *goquery.Document) (*pbp.Player, error) {
	meta := doc.Find("div#meta")
	if meta.Length() == 0 {
		return nil, fmt.Errorf("%w: %s has no bio", pbp.ErrPlayerNotFound, id)
	}

	p := &pbp.Player{
		ID:             id,
		Name:           strings.TrimSpace(meta.Find("h1").First().Text()),
		TeamsBySeason:  make(map[string][]string),
		SalaryBySeason: make(map[string]int64),
	}

	text := strings.ReplaceAll(meta.Text(), "\u00a0", " ")
	if m := heightMass.FindStringSubmatch(text); m != nil {
		p.HeightCM, _ = strconv.Atoi(m[1])
		p.MassKG, _ = strconv.Atoi(m[2])
	}
	if birth, ok := meta.Find("[data-birth]").First().Attr("data-birth"); ok {
		if t, err := time.Parse("2006-01-02", birth); err == nil {
			p.BirthDate = t
		}
	}

	parseTeams(doc, p)
	parseSalaries(doc, p)
	parseStats(doc, p)
	return p, nil
}

// StatTables are the player page tables kept for season stat lookups.
var StatTables = []string{"per_game", "per_poss", "advanced"}

// parseStats keeps the numeric cells of every season row. When a season has several rows
// the combined one ("TOT", "2TM") wins.
func parseStats(doc *goquery.Document, p *pbp.Player) {
	for _, id := range StatTables {
		table := pbp.StatTable{}
		combined := make(map[string]bool)
		doc.Find("table#" + id + " tbody tr").Each(func(_ int, tr *goquery.Selection) {
			season := strings.TrimSpace(tr.Find("th").First().Text())
			if !seasonText.MatchString(season) {
				return
			}
			team := strings.TrimSpace(tr.Find(`td[data-stat="team_id"], td[data-stat="team_name_abbr"]`).First().Text())
			total := team == "TOT" || strings.HasSuffix(team, "TM")
			if combined[season] || (!total && table[season] != nil) {
				return
			}

			line := pbp.StatLine{}
			tr.Find("td[data-stat]").Each(func(_ int, td *goquery.Selection) {
				text := strings.TrimSpace(td.Text())
				if text == "" {
					return
				}
				v, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return
				}
				stat, _ := td.Attr("data-stat")
				line[stat] = v
			})
			table[season] = line
			combined[season] = total
		})
		if len(table) == 0 {
			continue
		}
		if p.Stats == nil {
			p.Stats = make(map[string]pbp.StatTable)
		}
		p.Stats[id] = table
	}
}

func parseTeams(doc *goquery.Document, p *pbp.Player) {
	table := doc.Find("table#per_poss")
	if table.Length() == 0 {
		table = doc.Find("table#per_game")
	}
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		season := strings.TrimSpace(tr.Find("th").First().Text())
		if !seasonText.MatchString(season) {
			return
		}
		team := strings.TrimSpace(tr.Find(`td[data-stat="team_id"], td[data-stat="team_name_abbr"]`).First().Text())
		if team == "" || team == "TOT" || strings.HasSuffix(team, "TM") {
			return
		}
		for _, t := range p.TeamsBySeason[season] {
			if t == team {
				return
			}
		}
		p.TeamsBySeason[season] = append(p.TeamsBySeason[season], team)
	})
}

func parseSalaries(doc *goquery.Document, p *pbp.Player) {
	doc.Find("table#all_salaries tbody tr, table#salaries tbody tr").Each(func(_ int, tr *goquery.Selection) {
		season := strings.TrimSpace(tr.Find("th").First().Text())
		if !seasonText.MatchString(season) {
			return
		}
		if salary, ok := ParseSalary(tr.Find(`td[data-stat="salary"]`).Text()); ok {
			p.SalaryBySeason[season] += salary
		}
	})
}

// ParseSalary reads "$1,234,567". "< Minimum" maps to the salary floor.
func ParseSalary(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "Minimum") {
		return pbp.SalaryFloor, true
	}
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
