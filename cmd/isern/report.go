package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/network"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, formatText, formatJSON)
	}
}

// writeReport renders a finished run.
func writeReport(w io.Writer, res *pipeline.Result, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Run)
	}
	return writeTextReport(w, res)
}

func writeTextReport(w io.Writer, res *pipeline.Result) error {
	run := res.Run
	names := make(map[domain.MemberID]string, len(run.Members))
	for _, m := range run.Members {
		names[m.MemberID] = m.DisplayName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(&b, "Threshold %.2f, sources %s, founders %s\n\n",
		run.Threshold, strings.Join(run.Sources, ", "), joinIDs(run.Founders))

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISERN\tMEMBER\tDEGREE\tPATH")
	for _, e := range res.Labels.Sorted() {
		degree := 0
		if res.Graph != nil {
			degree = res.Graph.Degree(e.MemberID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Label, displayName(names, e.MemberID), degree, pathString(names, res.Labels.Path(e.MemberID)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	byDistance, unreachable := res.Labels.Histogram()
	distances := make([]int, 0, len(byDistance))
	for d := range byDistance {
		distances = append(distances, d)
	}
	sort.Ints(distances)
	b.WriteString("\nDistribution:")
	for _, d := range distances {
		fmt.Fprintf(&b, " %d=%d", d, byDistance[d])
	}
	fmt.Fprintf(&b, " unreachable=%d\n", unreachable)

	s := run.Summary
	fmt.Fprintf(&b, "\nDiscovery: %d members, %d publications (%d skipped), %d coauthor names (%d resolved, %d unresolved), %d edges, %d fetch errors\n",
		s.MembersProcessed, s.PublicationsSeen, s.PublicationsSkipped, s.CoauthorNames, s.Resolved, s.Unresolved, s.EdgesAdded, s.FetchErrors)

	n := run.Network
	fmt.Fprintf(&b, "Network: %d nodes, %d edges, density %.3f, %d components (largest %d), %d isolated, mean degree %.2f\n",
		n.Nodes, n.Edges, n.Density, n.Components, n.LargestComponent, n.Isolated, n.MeanDegree)
	writeRanking(&b, "Top degree", names, n.TopDegree, "%.0f")
	writeRanking(&b, "Top betweenness", names, n.TopBetweenness, "%.3f")
	writeRanking(&b, "Top closeness", names, n.TopCloseness, "%.3f")
	if res.Graph != nil {
		degrees, counts, fractions := network.DegreeDistribution(res.Graph)
		b.WriteString("Degree distribution:")
		for i, d := range degrees {
			fmt.Fprintf(&b, " %d=%d (%.0f%%)", d, counts[i], 100*fractions[i])
		}
		b.WriteString("\n")
	}
	if err := writeContext(&b, names, run.ContextCoauthors); err != nil {
		return err
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRanking(b *strings.Builder, title string, names map[domain.MemberID]string, ranking []domain.Centrality, valueFormat string) {
	if len(ranking) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:", title)
	for i, c := range ranking {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(b, " %s ("+valueFormat+")", displayName(names, c.MemberID), c.Value)
	}
	b.WriteString("\n")
}

// maxContextListed bounds the context coauthors named in the text report.
const maxContextListed = 10

// writeContext lists non-member coauthors, most publications first.
func writeContext(b *strings.Builder, names map[domain.MemberID]string, nodes []domain.RunContextNode) error {
	fmt.Fprintf(b, "Context coauthors: %d\n", len(nodes))
	if len(nodes) == 0 {
		return nil
	}
	ranked := append([]domain.RunContextNode(nil), nodes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Publications != ranked[j].Publications {
			return ranked[i].Publications > ranked[j].Publications
		}
		return ranked[i].Key < ranked[j].Key
	})
	if len(ranked) > maxContextListed {
		ranked = ranked[:maxContextListed]
	}
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  COAUTHOR\tPUBLICATIONS\tWITH")
	for _, n := range ranked {
		with := make([]string, len(n.Members))
		for i, id := range n.Members {
			with[i] = displayName(names, id)
		}
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", n.DisplayName, n.Publications, strings.Join(with, ", "))
	}
	return tw.Flush()
}

func pathString(names map[domain.MemberID]string, path []domain.MemberID) string {
	if len(path) < 2 {
		return "-"
	}
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = displayName(names, id)
	}
	return strings.Join(parts, " -> ")
}

func displayName(names map[domain.MemberID]string, id domain.MemberID) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return string(id)
}

func joinIDs(ids []domain.MemberID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
