package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"expensedash/internal/api"
	"expensedash/internal/core"
)

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) monthFlag(fs *flag.FlagSet) *string {
	return fs.String("month", core.CurrentMonth(a.now()).String(), "Month as YYYY-MM")
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "Account email")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.PrintDefaults()
		return errors.New("missing required flags: email")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(a.p.out, "Password: ")
		var err error
		password, err = readPassword(a.stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(a.p.out)
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password cannot be empty")
	}

	res, err := a.client.Login(ctx, strings.ToLower(*email), password)
	if err != nil {
		return errors.New(api.Message(err, "login failed"))
	}
	if res.AccessToken == "" {
		return errors.New("no token received from server")
	}
	if err := a.tokens.Save(res.AccessToken); err != nil {
		return err
	}
	a.p.success("Signed in as " + strings.ToLower(*email))
	return nil
}

// readPassword reads without echo from a terminal, or one line otherwise.
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (a *app) logout() error {
	if err := a.tokens.Remove(); err != nil {
		return err
	}
	a.p.note("Signed out")
	return nil
}

func (a *app) me(ctx context.Context) error {
	token, err := a.tokens.Load()
	if err != nil {
		return err
	}
	user, err := a.client.Me(ctx, token)
	if err != nil {
		return err
	}
	a.p.heading("Account")
	a.p.field("Email", user.Email)
	if user.ID != "" {
		a.p.field("ID", user.ID.String())
	}
	if user.ProfileImageURL != "" {
		a.p.field("Avatar", user.ProfileImageURL)
	}
	return nil
}

func (a *app) expenses(ctx context.Context, args []string) error {
	fs := a.flags("expenses")
	monthStr := a.monthFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := core.ParseMonth(*monthStr)
	if err != nil {
		return err
	}
	token, err := a.tokens.Load()
	if err != nil {
		return err
	}
	data, err := a.client.MonthExpenses(ctx, token, m)
	if err != nil {
		return err
	}

	a.p.heading("Expenses · " + m.Label())
	if len(data.Expenses) == 0 {
		a.p.note("No expenses recorded for this month.")
	} else {
		expenses := append([]core.Expense(nil), data.Expenses...)
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].Time().After(expenses[j].Time())
		})
		rows := make([][]string, 0, len(expenses))
		for _, e := range expenses {
			rows = append(rows, []string{
				core.DisplayDateTime(e.Timestamp),
				e.Category,
				e.Description,
				core.FormatEuros(e.Amount),
				e.Key(),
			})
		}
		a.p.table([]string{"Date", "Category", "Description", "Amount", "ID"}, rows)
	}

	sum := data.Summary
	a.p.field("Monthly total", core.FormatEuros(sum.MonthlyTotal))
	a.p.field("Categories", fmt.Sprint(sum.CategoriesTracked()))
	for _, c := range core.SortedAmounts(sum.OverspendingCategories) {
		a.p.alert(fmt.Sprintf("Over budget: %s %s", c.Category, core.FormatEuros(c.Amount)))
	}
	for _, c := range core.SortedAmounts(sum.SuggestedBudgets) {
		a.p.line("Suggested budget: %s %s", c.Category, core.FormatEuros(c.Amount))
	}
	for _, insight := range sum.InsightTexts() {
		a.p.note("• " + insight)
	}
	return nil
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := a.flags("report")
	monthStr := a.monthFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := core.ParseMonth(*monthStr)
	if err != nil {
		return err
	}
	token, err := a.tokens.Load()
	if err != nil {
		return err
	}
	r, err := a.client.MonthlyReport(ctx, token, m)
	if err != nil {
		return err
	}

	a.p.heading("Report · " + m.Label())
	a.p.field("Total spent", core.FormatEuros(r.TotalSpent))
	if r.PDFReportURL != "" {
		a.p.field("PDF", r.PDFReportURL)
	}
	if r.CSVReportURL != "" {
		a.p.field("CSV", r.CSVReportURL)
	}
	if len(r.SpendingSpikes) == 0 {
		a.p.note("No spikes detected")
		return nil
	}
	rows := make([][]string, 0, len(r.SpendingSpikes))
	for _, s := range r.SpendingSpikes {
		rows = append(rows, []string{core.DisplayDate(s.Timestamp), s.Category, core.FormatEuros(s.Amount)})
	}
	a.p.table([]string{"Date", "Category", "Amount"}, rows)
	return nil
}

func (a *app) lambda(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: expensectl lambda status|trigger")
	}
	token, err := a.tokens.Load()
	if err != nil {
		return err
	}
	switch args[0] {
	case "status":
		st, err := a.client.LambdaStatus(ctx, token)
		if err != nil {
			return err
		}
		level := "danger"
		if st.Status == "Active" {
			level = "success"
		}
		a.p.heading("Report Lambda")
		a.p.field("Function", st.FunctionName)
		a.p.field("Status", a.p.severity(level, st.Status))
		a.p.field("Runtime", st.Runtime)
		a.p.field("Last modified", st.LastModified)
		if st.Scheduler != nil {
			a.p.field("Scheduler", runningLabel(st.Scheduler.Running))
			if st.Scheduler.NextRun != "" {
				a.p.field("Next run", st.Scheduler.NextRun)
			}
		}
		return nil
	case "trigger":
		res, err := a.client.TriggerLambda(ctx, token)
		if err != nil {
			return err
		}
		if !res.Success {
			a.p.alert("Lambda invocation failed")
			if res.Error != "" {
				a.p.field("Error", res.Error)
			}
			if res.StatusCode != 0 {
				a.p.field("Status code", fmt.Sprint(res.StatusCode))
			}
			return errors.New("lambda invocation failed")
		}
		a.p.success("Lambda triggered successfully")
		if text := res.ResultText(); text != "" {
			a.p.field("Result", text)
		}
		return nil
	}
	return fmt.Errorf("unknown lambda command %q", args[0])
}

func runningLabel(running bool) string {
	if running {
		return "Running"
	}
	return "Stopped"
}

func (a *app) scheduler(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: expensectl scheduler status|start|stop|set")
	}
	token, err := a.tokens.Load()
	if err != nil {
		return err
	}

	var res core.ActionResult
	switch args[0] {
	case "status":
		return a.schedulerStatus(ctx, token)
	case "start":
		res, err = a.client.StartScheduler(ctx, token)
	case "stop":
		res, err = a.client.StopScheduler(ctx, token)
	case "set":
		fs := a.flags("scheduler set")
		day := fs.Int("day", core.DefaultSchedule.Day, "Day of month (1-31)")
		hour := fs.Int("hour", core.DefaultSchedule.Hour, "Hour, UTC (0-23)")
		minute := fs.Int("minute", core.DefaultSchedule.Minute, "Minute (0-59)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		s := core.Schedule{Day: *day, Hour: *hour, Minute: *minute}
		if err := s.Validate(); err != nil {
			return err
		}
		res, err = a.client.UpdateSchedule(ctx, token, s)
	default:
		return fmt.Errorf("unknown scheduler command %q", args[0])
	}
	if err != nil {
		return err
	}
	if res.Message != "" {
		a.p.success(res.Message)
	} else {
		a.p.success("Scheduler updated")
	}
	return nil
}

func (a *app) schedulerStatus(ctx context.Context, token string) error {
	st, err := a.client.SchedulerStatus(ctx, token)
	if err != nil {
		return err
	}
	a.p.heading("Report scheduler")
	level := "danger"
	if st.Running {
		level = "success"
	}
	a.p.field("Status", a.p.severity(level, runningLabel(st.Running)))
	if sched := st.Schedule; !sched.IsZero() {
		a.p.field("Schedule", sched.Describe())
		if sched.NextRun != "" {
			a.p.field("Next run", sched.NextRun)
		}
		if runs, err := sched.NextRuns(a.now(), 3); err == nil {
			for i, t := range runs {
				a.p.field(fmt.Sprintf("Upcoming #%d", i+1), t.Format("Mon, Jan 02 2006 15:04 UTC"))
			}
		}
	}
	for _, j := range st.Jobs {
		a.p.line("Job %s (%s) next %s", j.Name, j.ID, j.NextRun)
	}
	return nil
}

func (a *app) thresholds(ctx context.Context, args []string) error {
	token, err := a.tokens.Load()
	if err != nil {
		return err
	}
	current, err := a.client.Thresholds(ctx, token)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		if args[0] != "set" {
			return fmt.Errorf("unknown thresholds command %q", args[0])
		}
		updated, err := mergeThresholds(current, args[1:])
		if err != nil {
			return err
		}
		if current, err = a.client.UpdateThresholds(ctx, token, updated); err != nil {
			return err
		}
		a.p.success("Thresholds updated")
	}

	a.p.heading("Budget thresholds")
	for _, c := range core.Categories {
		if v, ok := current[c]; ok {
			a.p.field(c, core.FormatEuros(v))
		} else {
			a.p.field(c, a.p.muted.Render("not set"))
		}
	}
	return nil
}

// mergeThresholds applies "Category=amount" pairs on top of current. An
// empty amount clears the category.
func mergeThresholds(current core.Thresholds, pairs []string) (core.Thresholds, error) {
	if len(pairs) == 0 {
		return nil, errors.New("usage: expensectl thresholds set Category=amount ...")
	}
	out := make(core.Thresholds, len(current))
	for k, v := range current {
		out[k] = v
	}
	for _, pair := range pairs {
		category, amount, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid threshold %q, want Category=amount", pair)
		}
		if !core.IsCategory(category) {
			return nil, fmt.Errorf("unknown category %q", category)
		}
		d, ok, err := core.ParseThreshold(amount)
		if err != nil {
			return nil, fmt.Errorf("%s threshold must be a positive amount", category)
		}
		if !ok {
			delete(out, category)
			continue
		}
		out[category] = d
	}
	return out, nil
}
