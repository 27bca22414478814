package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"redub/internal/api"
	"redub/internal/ipc"
	"redub/internal/queue"
	"redub/internal/queueaccess"
)

func newCrawlCommand(ctx *commandContext) *cobra.Command {
	var opts queue.CrawlOptions
	cmd := &cobra.Command{
		Use:   "crawl <share-url>",
		Short: "Queue a download of a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CreateCrawl(ipc.CrawlRequest{URL: args[0], Options: opts})
				if err != nil {
					return err
				}
				return printCreated(cmd, ctx, resp, "crawl")
			})
		},
	}
	cmd.Flags().BoolVar(&opts.DownloadCover, "cover", false, "Also download the cover image")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "Copy the downloaded files to this directory")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts queue.ProcessOptions
	cmd := &cobra.Command{
		Use:   "process <video-id>",
		Short: "Transcribe, translate, dub and subtitle a downloaded video",
		Long: "Queues the processing pipeline for a video. An unfinished task for the\n" +
			"same video is reused; --retry-from restarts a finished one at that stage.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CreateProcess(ipc.ProcessRequest{VideoID: args[0], Options: opts})
				if err != nil {
					return err
				}
				return printCreated(cmd, ctx, resp, "process")
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.RetryFromStep, "retry-from", "", "Restart at transcribe, translate, synthesize or edit")
	flags.StringVar(&opts.SourceLanguage, "source-language", "", "Spoken language hint for transcription")
	flags.StringVar(&opts.TargetLanguage, "target-language", "", "Language to translate into")
	flags.StringVar(&opts.TranslationProvider, "translator", "", "openai or deepl")
	flags.StringVar(&opts.SynthesisProvider, "voice-provider", "", "edge-tts or elevenlabs")
	flags.StringVar(&opts.Voice, "voice", "", "Provider voice name")
	flags.StringVar(&opts.VoiceType, "voice-type", "", "male or female when no voice is named")
	flags.Float64Var(&opts.Speed, "speed", 0, "Speech rate multiplier")
	flags.Float64Var(&opts.Pitch, "pitch", 0, "Pitch shift")
	flags.BoolVar(&opts.CombineAudio, "combine-audio", false, "Also write one combined narration track")
	flags.StringVar(&opts.SubtitleStyle, "subtitles", "", "bilingual, english or chinese")
	flags.StringVar(&opts.Prompt, "prompt", "", "Extra instructions for the translator")
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var meta queue.UploadMetadata
	cmd := &cobra.Command{
		Use:   "upload <video-id>",
		Short: "Publish a processed video",
		Long: "Queues an upload of a processed video. Title and description default to\n" +
			"the values recorded when the video was downloaded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CreateUpload(ipc.UploadRequest{VideoID: args[0], Metadata: meta})
				if err != nil {
					return err
				}
				return printCreated(cmd, ctx, resp, "upload")
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&meta.Title, "title", "", "Video title (default: the downloaded title)")
	flags.StringVar(&meta.Description, "description", "", "Video description")
	flags.StringSliceVar(&meta.Tags, "tag", nil, "Tag, repeatable")
	flags.StringVar(&meta.Category, "category", "", "Platform category")
	flags.StringVar(&meta.Privacy, "privacy", "", "public, unlisted or private")
	return cmd
}

func printCreated(cmd *cobra.Command, ctx *commandContext, resp *ipc.CreateResponse, kind string) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s task %s\n", kind, resp.TaskID)
	return nil
}

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and remove tasks",
	}

	var kind, videoID string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				tasks, err := access.List(cmd.Context(), kind, videoID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.TaskListResponse{Tasks: tasks})
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(taskHeaders, taskRows(tasks)))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&kind, "type", "", "Only crawl, process or upload tasks")
	listCmd.Flags().StringVar(&videoID, "video", "", "Only tasks for this video")

	showCmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				task, err := access.Show(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %s not found", args[0])
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.TaskResponse{Task: *task})
				}
				renderTask(cmd, *task)
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <task-id>...",
		Short: "Delete tasks regardless of status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				result, err := access.Remove(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, r := range result.Tasks {
					if r.Outcome == api.RemoveOutcomeRemoved {
						fmt.Fprintf(out, "Removed %s\n", r.ID)
					} else {
						fmt.Fprintf(out, "Task %s not found\n", r.ID)
					}
				}
				return nil
			})
		},
	}

	taskCmd.AddCommand(listCmd, showCmd, removeCmd)
	return taskCmd
}

func renderTask(cmd *cobra.Command, task api.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", task.ID)
	fmt.Fprintf(out, "Type:      %s\n", task.Kind)
	fmt.Fprintf(out, "Status:    %s\n", task.Status)
	fmt.Fprintf(out, "Progress:  %s\n", progressBar(task.Progress, 20))
	fmt.Fprintf(out, "Video:     %s\n", orDash(task.VideoID))
	fmt.Fprintf(out, "Created:   %s\n", orDash(task.CreatedAt))
	fmt.Fprintf(out, "Updated:   %s\n", orDash(task.UpdatedAt))
	if task.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", task.Error)
	}
	if len(task.Payload) > 0 {
		fmt.Fprintf(out, "Payload:   %s\n", string(task.Payload))
	}
}

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Inspect downloaded videos and their pipeline status",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List downloaded videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoList()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if len(resp.Videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(videoHeaders, videoRows(resp.Videos)))
				return nil
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show the downloaded metadata of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoShow(args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderVideo(cmd, resp.Video)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <video-id>",
		Short: "Show the pipeline stage of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				status, err := access.VideoStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if status == nil {
					return fmt.Errorf("no status for video %s", args[0])
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.VideoStatusResponse{Status: *status})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Video:     %s\n", status.VideoID)
				fmt.Fprintf(out, "Stage:     %s\n", status.Stage)
				fmt.Fprintf(out, "Progress:  %s\n", progressBar(status.Progress, 20))
				fmt.Fprintf(out, "Message:   %s\n", orDash(status.Message))
				if status.Error != "" {
					fmt.Fprintf(out, "Error:     %s\n", status.Error)
				}
				return nil
			})
		},
	}

	var interval time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch [video-id]",
		Short: "Follow status events from the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := ""
			if len(args) == 1 {
				videoID = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				var since int64
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					resp, err := client.Events(since, videoID)
					if err != nil {
						return err
					}
					for _, event := range resp.Events {
						if ctx.jsonOutput() {
							if err := writeJSON(cmd, event); err != nil {
								return err
							}
							continue
						}
						line := fmt.Sprintf("%s %s", event.At.Local().Format(time.TimeOnly), event.VideoID)
						if event.Status != nil {
							line += fmt.Sprintf(" %s %d%% %s", event.Status.Stage, event.Status.Progress, event.Status.Message)
						}
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
					since = resp.Next
					select {
					case <-cmd.Context().Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}
	watchCmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")

	videoCmd.AddCommand(listCmd, showCmd, statusCmd, watchCmd)
	return videoCmd
}

func renderVideo(cmd *cobra.Command, video api.Video) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Video:     %s\n", video.ID)
	fmt.Fprintf(out, "Title:     %s\n", orDash(video.Title))
	fmt.Fprintf(out, "Author:    %s\n", orDash(video.Author))
	if video.Duration > 0 {
		fmt.Fprintf(out, "Duration:  %s\n", time.Duration(video.Duration*float64(time.Second)).Round(time.Second))
	}
	fmt.Fprintf(out, "Source:    %s\n", orDash(video.SourceURL))
	if video.Description != "" {
		fmt.Fprintf(out, "Desc:      %s\n", video.Description)
	}
	if video.Status != nil {
		fmt.Fprintf(out, "Stage:     %s\n", video.Status.Stage)
		fmt.Fprintf(out, "Progress:  %s\n", progressBar(video.Status.Progress, 20))
	}
}
