package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"redub/internal/api"
)

// renderTable draws rows under headers. Columns listed in rightAligned are
// right aligned.
func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render() + "\n"
}

func taskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			task.Kind,
			task.Status,
			progressBar(task.Progress, 10),
			orDash(task.VideoID),
			orDash(task.UpdatedAt),
		})
	}
	return rows
}

func videoRows(videos []api.Video) [][]string {
	rows := make([][]string, 0, len(videos))
	for _, video := range videos {
		stage := "-"
		if video.Status != nil {
			stage = string(video.Status.Stage)
		}
		downloaded := "-"
		if !video.DownloadedAt.IsZero() {
			downloaded = video.DownloadedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{video.ID, orDash(video.Title), orDash(video.Author), stage, downloaded})
	}
	return rows
}

var videoHeaders = []string{"ID", "Title", "Author", "Stage", "Downloaded"}

var taskHeaders = []string{"ID", "Type", "Status", "Progress", "Video", "Updated"}

func progressBar(percent, width int) string {
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return fmt.Sprintf("%s%s %3d%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), percent)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
