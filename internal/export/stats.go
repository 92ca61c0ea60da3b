package export

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/11ea/xaipneumonia/internal/engine"
)

// WriteChannelStats writes the per-channel diagnostics as CSV, one row per
// selected channel per feature layer. Score and weight columns repeat per
// output layer so the file stays flat.
func WriteChannelStats(path string, stats map[string][]engine.ChannelStat, outputs []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"layer", "channel", "activation", "importance"}
	for _, out := range outputs {
		header = append(header, "score_"+out, "weight_"+out)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, layer := range sortedLayers(stats) {
		for _, st := range stats[layer] {
			row := []string{
				layer,
				strconv.Itoa(st.Channel),
				strconv.FormatFloat(st.Activation, 'g', 6, 64),
				strconv.FormatFloat(float64(st.Importance), 'g', 6, 32),
			}
			for _, out := range outputs {
				row = append(row,
					strconv.FormatFloat(float64(st.Score[out]), 'g', 6, 32),
					strconv.FormatFloat(float64(st.Weight[out]), 'g', 6, 32))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

func sortedLayers(stats map[string][]engine.ChannelStat) []string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
