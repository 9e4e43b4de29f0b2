package cmd

import (
	"context"
	"errors"

	"afdata/autofocus"
	"afdata/bootstrap"
	"afdata/config"
	"afdata/core"
	"afdata/enrich"
	"afdata/search"
	"afdata/sink"
	"afdata/storage"
	"afdata/util"

	"github.com/spf13/cobra"
)

// searchFlags are shared by the samples and sessions commands
type searchFlags struct {
	tag         string
	mode        string
	hashType    string
	input       string
	queryFile   string
	refreshTags bool
	sigs        bool
	onlySigs    bool
}

func (f *searchFlags) bind(cmd *cobra.Command, kind core.RunKind) {
	flags := cmd.Flags()
	flags.StringVarP(&f.tag, "tag", "t", "", "Run tag used in output file names (prompted when absent)")
	flags.StringVar(&f.mode, "mode", "", "Search mode: hash, threat or query (default: search.query_type)")
	flags.StringVar(&f.hashType, "hash-type", "", "Hash type of the input list: md5, sha1 or sha256 (default: search.hash_type)")
	flags.StringVarP(&f.input, "input", "i", "", "Input list, one value per line (default: search.input_file)")
	flags.StringVar(&f.queryFile, "query-file", "", "Query exported from the AutoFocus UI, for query mode (default: search.query_file)")
	flags.BoolVar(&f.refreshTags, "refresh-tags", false, "Refresh the cached tag data before searching")
	if kind == core.KindSamples {
		flags.BoolVar(&f.sigs, "sigs", false, "Look up signature coverage for found samples after the search")
		flags.BoolVar(&f.onlySigs, "only-sigs", false, "Skip the search and add signature coverage to the saved results of --tag")
	}
}

// searchPlan is a validated search request, resolved before any network call
type searchPlan struct {
	kind     core.RunKind
	tag      string
	mode     search.Mode
	hashType core.HashType
	inputs   []string
	query    core.Query
	sigs     bool
	onlySigs bool
}

func (a *app) planSearch(kind core.RunKind, f *searchFlags) (*searchPlan, error) {
	plan := &searchPlan{
		kind:     kind,
		sigs:     kind == core.KindSamples && (f.sigs || a.cfg.Enrich.SigCoverage),
		onlySigs: kind == core.KindSamples && (f.onlySigs || a.cfg.Enrich.OnlySigs),
	}

	modeName := firstNonEmpty(f.mode, a.cfg.Search.QueryType)
	mode, err := search.ParseMode(modeName)
	if err != nil {
		return nil, &config.ValidationError{Field: "mode", Message: err.Error()}
	}
	plan.mode = mode

	hashType, err := core.ParseHashType(firstNonEmpty(f.hashType, a.cfg.Search.HashType))
	if err != nil {
		return nil, &config.ValidationError{Field: "hash-type", Message: err.Error()}
	}
	plan.hashType = hashType

	plan.tag = f.tag
	if plan.tag == "" {
		if plan.tag, err = promptRunTag(a.in, a.out); err != nil {
			return nil, err
		}
	}
	if err := util.ValidateRunTag(plan.tag); err != nil {
		return nil, &config.ValidationError{Field: "tag", Message: err.Error()}
	}

	if plan.onlySigs {
		return plan, nil
	}

	if mode == search.ModeQuery {
		path := firstNonEmpty(f.queryFile, a.cfg.Search.QueryFile)
		if path == "" {
			return nil, &config.ValidationError{Field: "query-file", Message: "query mode needs --query-file or search.query_file"}
		}
		if plan.query, err = config.LoadQueryFile(path); err != nil {
			return nil, err
		}
		return plan, nil
	}

	plan.inputs, err = search.ReadInputFile(firstNonEmpty(f.input, a.cfg.Search.InputFile))
	if err != nil {
		return nil, err
	}
	if len(plan.inputs) == 0 {
		return nil, &config.ValidationError{Field: "input", Message: "input list is empty"}
	}
	return plan, nil
}

// runSearch executes one samples or sessions run end to end
func (a *app) runSearch(ctx context.Context, kind core.RunKind, f *searchFlags) error {
	plan, err := a.planSearch(kind, f)
	if err != nil {
		return err
	}
	if err := a.prepareDirs(); err != nil {
		return err
	}

	keys, err := a.resolveKeys()
	if err != nil {
		return err
	}
	client, err := a.newClient(keys)
	if err != nil {
		return err
	}

	if plan.onlySigs {
		return a.runCoverage(ctx, client, plan.tag)
	}

	if f.refreshTags {
		if err := a.refreshTags(ctx, client); err != nil {
			return err
		}
	}

	enricher, err := a.newEnricher(kind, plan.hashType, keys)
	if err != nil {
		return err
	}

	state := core.NewRunState(plan.tag, kind, a.now())
	out := sink.New(a.layout(), a.index(kind), sink.PassNoSigs, a.sugar)

	params := core.ScanParams(a.cfg.Search.PageSize)
	if kind == core.KindSessions {
		params = core.SessionScanParams(a.cfg.Search.PageSize)
	}

	poller := a.newPoller(kind)
	poller.OnProgress(a.printProgress)
	runner := search.NewRunner(poller, func(q core.Query) search.Session {
		return autofocus.NewSession(client, kind, q, params)
	}, enricher, out, a.sugar)
	runner.OnChunk(a.printChunk)

	a.sugar.Infow("Starting run", "tag", plan.tag, "kind", kind, "mode", plan.mode, "inputs", len(plan.inputs))
	report, err := runner.Run(ctx, search.RunRequest{
		State:        state,
		Mode:         plan.mode,
		HashType:     plan.hashType,
		Inputs:       plan.inputs,
		Query:        plan.query,
		ThreatWindow: a.cfg.ThreatWindow(),
		ChunkSize:    a.cfg.Search.ChunkSize,
	})
	if err != nil {
		return a.searchFailed(err)
	}

	bulk, pretty := out.Paths(state)
	if a.opts.outputJSON {
		if err := a.outputAsJSON(newRunOutput(state, report, bulk, pretty)); err != nil {
			return err
		}
	} else if !a.opts.quiet {
		writeSummary(a.out, state, report)
		writeBulkCommand(a.out, a.cfg.Output.ElasticURL, bulk, pretty)
	}

	if err := a.recordRun(ctx, state, sink.PassNoSigs, report.Stalled(), bulk, pretty); err != nil {
		return err
	}

	if plan.sigs {
		return a.coverageFor(ctx, client, state)
	}
	return nil
}

func (a *app) newEnricher(kind core.RunKind, hashType core.HashType, keys config.Keys) (*enrich.Enricher, error) {
	tax, err := a.loadTaxonomy()
	if err != nil {
		return nil, err
	}
	exploits, err := a.loadExploits()
	if err != nil {
		return nil, err
	}

	cfg := enrich.Config{HashType: hashType, Exploits: exploits}
	if tax != nil {
		cfg.Tags = tax
	}
	if kind == core.KindSessions {
		cache, err := a.openGeoCache(keys)
		if err != nil {
			return nil, err
		}
		cfg.Geo = cache
	}
	return enrich.NewEnricher(cfg, a.sugar), nil
}

// searchFailed explains a failed search before returning its error
func (a *app) searchFailed(err error) error {
	if errors.Is(err, context.Canceled) {
		a.printf(warningColor, "Interrupted; results written so far are kept\n")
		return err
	}
	writeRemoteError(a.out, err)
	a.printf(errorColor, "%s\n", bootstrap.ClassifyAPIError(err, a.cfg.API.Hostname))
	return err
}

func (a *app) recordRun(ctx context.Context, state *core.RunState, pass sink.Pass, stalled bool, bulk, pretty string) error {
	ledger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	id := state.ID
	if pass != sink.PassNoSigs {
		id += "-" + string(pass)
	}

	sum := state.Summarize()
	return ledger.Record(ctx, storage.Run{
		ID:         id,
		Tag:        state.Tag,
		Kind:       string(state.Kind),
		Pass:       string(pass),
		StartedAt:  state.Started,
		FinishedAt: a.now(),
		Found:      sum.Found,
		NotFound:   sum.NotFound,
		Stalled:    stalled,
		BulkPath:   bulk,
		PrettyPath: pretty,
	})
}

// runOutput is the --json rendering of a finished run
type runOutput struct {
	ID         string                `json:"id"`
	Tag        string                `json:"tag"`
	Kind       core.RunKind          `json:"kind"`
	Records    int                   `json:"records"`
	Found      int                   `json:"found"`
	NotFound   int                   `json:"not_found"`
	Verdicts   map[core.Verdict]int  `json:"verdicts"`
	Signatures map[core.SigState]int `json:"malware_signatures,omitempty"`
	Stalled    bool                  `json:"stalled"`
	Elapsed    string                `json:"elapsed,omitempty"`
	Anomalies  []string              `json:"anomalies,omitempty"`
	BulkPath   string                `json:"bulk_path"`
	PrettyPath string                `json:"pretty_path"`
}

func newRunOutput(state *core.RunState, report *search.RunReport, bulk, pretty string) runOutput {
	sum := state.Summarize()
	out := runOutput{
		ID:         state.ID,
		Tag:        state.Tag,
		Kind:       state.Kind,
		Records:    sum.Total,
		Found:      sum.Found,
		NotFound:   sum.NotFound,
		Verdicts:   sum.Verdicts,
		Signatures: sum.MalwareSigs,
		Anomalies:  state.Anomalies(),
		BulkPath:   bulk,
		PrettyPath: pretty,
	}
	if report != nil {
		out.Stalled = report.Stalled()
		out.Elapsed = report.Elapsed.String()
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
