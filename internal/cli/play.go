package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"btstrm/internal/domain"
	"btstrm/internal/history"
	"btstrm/internal/locator"
	"btstrm/internal/mount"
	"btstrm/internal/picker"
	"btstrm/internal/player"
	"btstrm/internal/playlist"
	"btstrm/internal/progress"
	"btstrm/internal/providers/tmdb"
	"btstrm/internal/search"
)

// play is the default command: pick something, mount it, play it.
func (rt *runtime) play(ctx context.Context, opts *options, args []string) error {
	fzf := picker.New("")

	query := strings.TrimSpace(strings.Join(args, " "))
	title := ""
	if opts.title != "" {
		chosen, err := rt.pickTitle(ctx, fzf, opts.title)
		if err != nil {
			return err
		}
		query, title = chosen, chosen
	}

	link := query
	if !locator.IsDirect(query, rt.cfg.JackettURL) {
		chosen, err := rt.pickCandidate(ctx, fzf, query)
		if err != nil {
			return err
		}
		link = chosen
		_, _ = fmt.Fprintln(rt.stdout, link)
	}

	loc, err := rt.resolver().Resolve(ctx, link)
	if err != nil {
		return err
	}
	if title == "" {
		title = loc.Display()
	}

	p, err := player.Find(player.Candidates(opts.player, rt.cfg.Players), exec.LookPath)
	if err != nil {
		return err
	}

	store := rt.historyStore(ctx)
	defer store.Close(context.WithoutCancel(ctx))
	rec := history.NewRecord(loc.URI, title, time.Now())

	var media []string
	err = rt.manager().Run(ctx, loc.URI, func(ctx context.Context, s *mount.Session) error {
		files, err := rt.stream(ctx, s, p, opts)
		media = files
		return err
	})

	rec = rec.Finish(outcomeOf(err), ExitCode(err), media, time.Now())
	if saveErr := store.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
		rt.logger.Warn("history save failed", slog.String("error", saveErr.Error()))
	}
	return err
}

// stream runs inside a session and returns the media it found.
func (rt *runtime) stream(ctx context.Context, s *mount.Session, p player.Player, opts *options) ([]string, error) {
	monitor := progress.NewMonitor(rt.fs, s.LogPath, rt.stdout,
		progress.WithInterval(rt.cfg.Progress.Interval),
		progress.WithLogger(rt.logger),
	)
	s.Attach(monitor.Run)

	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}
	media, err := s.MediaFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if len(media) == 0 {
		return nil, domain.ErrNoMedia
	}
	for _, path := range s.BackingPaths(media) {
		_, _ = fmt.Fprintln(rt.stdout, path)
	}

	status, err := player.Run(ctx, p, media)
	if err != nil {
		return media, err
	}
	if status != 0 {
		return media, &PlayerExitError{Status: status}
	}

	if opts.impd {
		completed, err := s.CompletedMedia()
		if err != nil {
			rt.logger.Warn("completion scan failed", slog.String("error", err.Error()))
		}
		if len(completed) == 0 {
			_, _ = fmt.Fprintln(rt.stdout, "No fully downloaded media found.")
			return media, nil
		}
		if err := playlist.New(rt.stdout, rt.logger).Add(ctx, completed); err != nil {
			rt.logger.Warn("playlist add failed", slog.String("error", err.Error()))
		}
	}
	return media, nil
}

// pickCandidate searches every configured indexer and lets the user choose.
func (rt *runtime) pickCandidate(ctx context.Context, fzf *picker.Picker, query string) (string, error) {
	result, err := rt.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(result) == 0 {
		_, _ = fmt.Fprintln(rt.stdout, "No torrents found.")
		return "", domain.ErrNoSelection
	}
	return fzf.Pick(ctx, picker.Rows(result))
}

func (rt *runtime) search(ctx context.Context, query string) (domain.AggregateResult, error) {
	indexers, err := rt.jackett.ListIndexers(ctx)
	if err != nil {
		// A dead Jackett is "no results", not a crash.
		rt.logger.Warn("list indexers failed", slog.String("error", err.Error()))
		return domain.AggregateResult{}, nil
	}
	client := search.NewIndexerClient(rt.jackett, search.WithClientLogger(rt.logger))
	result := rt.dispatcher(ctx, client, rt.searchProgress()).Dispatch(ctx, query, indexers)
	rt.reportIndexerHealth(client)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// pickTitle resolves free text to a canonical title through TMDB and fzf.
func (rt *runtime) pickTitle(ctx context.Context, fzf *picker.Picker, text string) (string, error) {
	client := rt.titles(ctx)
	results, err := client.SearchMulti(ctx, text, rt.cfg.Lang)
	if errors.Is(err, tmdb.ErrDisabled) {
		return "", err
	}
	if err != nil {
		rt.logger.Warn("title lookup failed", slog.String("error", err.Error()))
	}
	if len(results) == 0 {
		_, _ = fmt.Fprintln(rt.stdout, "No alternative titles found.")
		return "", domain.ErrNoSelection
	}

	posters := client.FetchPosters(ctx, results, os.TempDir(), rt.logger)
	defer posters.Cleanup()

	titles := make([]picker.Title, 0, len(posters.Posters))
	for _, p := range posters.Posters {
		name := p.Result.DisplayTitle()
		if year := p.Result.Year(); year > 0 {
			name = fmt.Sprintf("%s (%d)", name, year)
		}
		titles = append(titles, picker.Title{PosterPath: p.Path, Name: name})
	}
	chosen, err := fzf.PickTitle(ctx, titles)
	if err != nil {
		return "", err
	}
	return stripYear(chosen), nil
}

// stripYear removes the " (YYYY)" suffix added for display.
func stripYear(name string) string {
	i := strings.LastIndex(name, " (")
	if i < 0 || !strings.HasSuffix(name, ")") {
		return name
	}
	year := name[i+2 : len(name)-1]
	if len(year) != 4 {
		return name
	}
	for _, c := range year {
		if c < '0' || c > '9' {
			return name
		}
	}
	return name[:i]
}
