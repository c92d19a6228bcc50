package services

import (
	"sort"
	"strings"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
)

const pathKeySeparator = "\x1f"

type pathCount struct {
	pages     []string
	count     int64
	converted int64
}

type pageExits struct {
	views int64
	exits int64
}

// computePathAnalysis ranks page sequences. converted holds the session IDs
// that fired a conversion event.
func computePathAnalysis(paths []*interfaces.SessionPath, converted map[string]bool, limit int) models.PathAnalysis {
	if limit <= 0 {
		limit = 10
	}

	sequences := make(map[string]*pathCount)
	pages := make(map[string]*pageExits)
	var analyzed int64

	for _, p := range paths {
		seq := collapseRepeats(p.Pages)
		if len(seq) == 0 {
			continue
		}
		analyzed++

		key := strings.Join(seq, pathKeySeparator)
		pc, ok := sequences[key]
		if !ok {
			pc = &pathCount{pages: seq}
			sequences[key] = pc
		}
		pc.count++
		if converted[p.SessionID] {
			pc.converted++
		}

		for i, url := range seq {
			pe, ok := pages[url]
			if !ok {
				pe = &pageExits{}
				pages[url] = pe
			}
			pe.views++
			if i == len(seq)-1 {
				pe.exits++
			}
		}
	}

	all := make([]*pathCount, 0, len(sequences))
	for _, pc := range sequences {
		all = append(all, pc)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return strings.Join(all[i].pages, pathKeySeparator) < strings.Join(all[j].pages, pathKeySeparator)
	})
	result := models.PathAnalysis{
		SessionsAnalyzed: analyzed,
		TopPaths:         []models.PathStat{},
		ConvertingPaths:  []models.PathStat{},
		PageDropOffs:     []models.PageDropOff{},
	}
	for _, pc := range all {
		if len(result.TopPaths) == limit {
			break
		}
		result.TopPaths = append(result.TopPaths, models.PathStat{
			Pages:      pc.pages,
			Count:      pc.count,
			Percentage: utils.Round2(utils.Percentage(float64(pc.count), float64(analyzed))),
		})
	}

	converting := make([]*pathCount, 0)
	for _, pc := range all {
		if pc.converted > 0 {
			converting = append(converting, pc)
		}
	}
	sort.SliceStable(converting, func(i, j int) bool {
		return converting[i].converted > converting[j].converted
	})
	for _, pc := range converting {
		if len(result.ConvertingPaths) == limit {
			break
		}
		// Percentage is the conversion rate of sessions following this path.
		result.ConvertingPaths = append(result.ConvertingPaths, models.PathStat{
			Pages:      pc.pages,
			Count:      pc.converted,
			Percentage: utils.Round2(utils.Percentage(float64(pc.converted), float64(pc.count))),
		})
	}

	for url, pe := range pages {
		rate := utils.Round2(utils.Percentage(float64(pe.exits), float64(pe.views)))
		result.PageDropOffs = append(result.PageDropOffs, models.PageDropOff{
			URL:         url,
			Views:       pe.views,
			Exits:       pe.exits,
			DropOffRate: rate,
			Suggestion:  dropOffSuggestion(rate),
		})
	}
	sort.Slice(result.PageDropOffs, func(i, j int) bool {
		a, b := result.PageDropOffs[i], result.PageDropOffs[j]
		if a.DropOffRate != b.DropOffRate {
			return a.DropOffRate > b.DropOffRate
		}
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		return a.URL < b.URL
	})
	if len(result.PageDropOffs) > limit {
		result.PageDropOffs = result.PageDropOffs[:limit]
	}
	return result
}

// collapseRepeats drops consecutive reloads of the same page.
func collapseRepeats(pages []string) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		if p == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

func dropOffSuggestion(rate float64) string {
	switch {
	case rate >= 70:
		return "High exit rate: check that the content matches what visitors expect and add a clear next step"
	case rate >= 40:
		return "Moderate exit rate: link related pages and surface a call to action above the fold"
	case rate >= 20:
		return "Some visitors leave here: review load time and page layout"
	default:
		return "Healthy: most visitors continue to another page"
	}
}
