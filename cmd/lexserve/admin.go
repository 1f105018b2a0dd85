package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"lexserve/internal/app"
	"lexserve/internal/config"
	"lexserve/internal/documents"
)

// openApp wires an Application for the read-mostly admin subcommands,
// which need the vector store but no credentials beyond what the store
// itself wants.
func openApp(cfg config.Config) (*app.Application, int) {
	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("wiring failed")
		return nil, exitConfig
	}
	return a, exitOK
}

func cmdDelete(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	var (
		collection = fs.String("collection", "", "collection to delete")
		all        = fs.Bool("all", false, "delete every collection")
		yes        = fs.Bool("y", false, "skip the confirmation prompt")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if (*collection != "") == *all {
		log.Error().Msg("delete needs exactly one of --collection NAME or --all")
		return exitUsage
	}

	a, code := openApp(cfg)
	if code != exitOK {
		return code
	}
	defer a.Close()

	var targets []string
	if *all {
		infos, err := a.Store.ListCollections(ctx)
		if err != nil {
			log.Error().Err(err).Msg("list collections")
			return exitRuntime
		}
		for _, info := range infos {
			targets = append(targets, info.Name)
		}
	} else {
		targets = []string{*collection}
	}
	if len(targets) == 0 {
		fmt.Println("nothing to delete")
		return exitOK
	}

	if !*yes && !confirm(fmt.Sprintf("delete %s? [y/N] ", strings.Join(targets, ", "))) {
		fmt.Println("aborted")
		return exitOK
	}

	for _, name := range targets {
		if err := a.Store.DeleteCollection(ctx, name); err != nil {
			log.Error().Err(err).Str("collection", name).Msg("delete failed")
			return exitRuntime
		}
		fmt.Printf("deleted %s\n", name)
	}
	return exitOK
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func cmdInfo(ctx context.Context, cfg config.Config, args []string) int {
	if len(args) == 0 {
		log.Error().Msg("info needs a subcommand: collections or sample")
		return exitUsage
	}
	switch args[0] {
	case "collections":
		return cmdInfoCollections(ctx, cfg)
	case "sample":
		return cmdInfoSample(ctx, cfg, args[1:])
	default:
		log.Error().Str("subcommand", args[0]).Msg("unknown info subcommand")
		return exitUsage
	}
}

func cmdInfoCollections(ctx context.Context, cfg config.Config) int {
	a, code := openApp(cfg)
	if code != exitOK {
		return code
	}
	defer a.Close()

	out, err := a.Search.ListCollections(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list collections")
		return exitRuntime
	}
	fmt.Print(out)
	return exitOK
}

func cmdInfoSample(ctx context.Context, cfg config.Config, args []string) int {
	if len(args) == 0 {
		log.Error().Msg("info sample needs a type: opinions or orders")
		return exitUsage
	}
	var collection string
	switch args[0] {
	case "opinions":
		collection = documents.CollectionOpinions
	case "orders":
		collection = documents.CollectionOrders
	default:
		log.Error().Str("type", args[0]).Msg("unknown sample type")
		return exitUsage
	}

	fs := flag.NewFlagSet("info sample", flag.ContinueOnError)
	var (
		limit    = fs.Int("limit", 5, "number of chunks to show")
		showText = fs.Bool("show-text", false, "print full chunk text")
	)
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	a, code := openApp(cfg)
	if code != exitOK {
		return code
	}
	defer a.Close()

	hits, err := a.Store.Sample(ctx, collection, *limit)
	if err != nil {
		log.Error().Err(err).Msg("sample failed")
		return exitRuntime
	}
	for _, hit := range hits {
		fmt.Printf("%s  chunk=%d tokens=%d  %s\n", hit.ID, hit.ChunkIndex, hit.TokenCount, hit.Title)
		if *showText {
			fmt.Println(hit.Text)
			fmt.Println("---")
		}
	}
	return exitOK
}

func cmdQuery(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	limit := fs.Int("limit", cfg.MCP.DefaultSearchLimit, "maximum hits")

	// Accept `query <text> --limit N` as well as flags-first ordering.
	var positional []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	positional = append(positional, fs.Args()...)
	query := strings.TrimSpace(strings.Join(positional, " "))
	if query == "" {
		log.Error().Msg("query needs search text")
		return exitUsage
	}

	if cfg.OpenAIAPIKey == "" {
		log.Error().Msg("OPENAI_API_KEY is required to embed queries")
		return exitConfig
	}

	a, code := openApp(cfg)
	if code != exitOK {
		return code
	}
	defer a.Close()

	out, err := a.Search.SearchAll(ctx, query, nil, *limit)
	if err != nil {
		if interrupted(ctx, err) {
			return exitInterrupted
		}
		log.Error().Err(err).Msg("search failed")
		return exitRuntime
	}
	fmt.Print(out)
	return exitOK
}
