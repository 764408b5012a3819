package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"harvester/internal/cli"
	"harvester/internal/core"
	"harvester/internal/dbfile"
	"harvester/internal/export"
	"harvester/internal/receipt"
	"harvester/internal/services"
	"harvester/internal/share"
)

const dateLayout = "2006-01-02"

var commands []command

func init() {
	commands = []command{
		{"add-farmer", "", "record a harvesting bill", cmdAddFarmer},
		{"edit-farmer", "ID", "change a bill; unset flags keep their value", cmdEditFarmer},
		{"delete-farmer", "ID", "delete a bill", cmdDeleteFarmer},
		{"list", "", "list bills, newest first", cmdList},
		{"add-expense", "", "record an operating expense", cmdAddExpense},
		{"delete-expense", "ID", "delete an expense", cmdDeleteExpense},
		{"expenses", "", "list expenses, newest first", cmdExpenses},
		{"summary", "", "show revenue, pending balance and net profit", cmdSummary},
		{"charts", "", "show monthly, crop and expense rollups", cmdCharts},
		{"share", "ID", "print the WhatsApp bill text and link", cmdShare},
		{"receipt", "ID", "write the receipt image of a bill", cmdReceipt},
		{"export", "", "write all bills to an Excel workbook", cmdExport},
		{"open", "PATH", "load a database file and keep it connected", cmdOpen},
		{"connect", "PATH", "save to a new database file and keep it connected", cmdConnect},
		{"backup", "", "write a dated backup of all records", cmdBackup},
		{"backup-status", "", "report when the last backup was taken", cmdBackupStatus},
		{"serve", "", "run the dashboard server", cmdServe},
	}
}

type farmerFlags struct {
	name, date, contact, place, crop string
	acres, rate, paid, comments      string
	settled                          bool
}

func (f *farmerFlags) register(fs *flag.FlagSet, defaults services.FarmerForm) {
	fs.StringVar(&f.name, "name", defaults.Name, "farmer name")
	fs.StringVar(&f.date, "date", defaults.Date, "job date (YYYY-MM-DD)")
	fs.StringVar(&f.contact, "contact", defaults.Contact, "10-digit phone number")
	fs.StringVar(&f.place, "place", defaults.Place, "village or field location")
	fs.StringVar(&f.crop, "crop", defaults.Crop, "crop harvested")
	fs.StringVar(&f.acres, "acres", defaults.Acres, "acres harvested")
	fs.StringVar(&f.rate, "rate", defaults.Rate, "rate per acre")
	fs.StringVar(&f.paid, "paid", defaults.PaidAmount, "amount paid so far")
	fs.BoolVar(&f.settled, "settled", defaults.IsSettled, "close the bill regardless of balance")
	fs.StringVar(&f.comments, "comments", defaults.Comments, "free-form notes")
}

func (f *farmerFlags) form(id string) services.FarmerForm {
	return services.FarmerForm{
		ID:         id,
		Name:       f.name,
		Date:       f.date,
		Contact:    f.contact,
		Place:      f.place,
		Crop:       f.crop,
		Acres:      f.acres,
		Rate:       f.rate,
		PaidAmount: f.paid,
		IsSettled:  f.settled,
		Comments:   f.comments,
	}
}

func formOf(r core.FarmerRecord) services.FarmerForm {
	form := services.FarmerForm{
		ID:        r.ID,
		Name:      r.Name,
		Date:      r.Date.Key(),
		Contact:   r.Contact,
		Place:     r.Place,
		Crop:      r.Crop,
		Acres:     r.Acres.String(),
		Rate:      r.Rate.String(),
		IsSettled: r.IsSettled,
		Comments:  r.Comments,
	}
	if r.PaidAmount != nil {
		form.PaidAmount = r.PaidAmount.String()
	}
	return form
}

func cmdAddFarmer(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "add-farmer")
	var f farmerFlags
	f.register(fs, services.FarmerForm{Date: e.now().Format(dateLayout)})
	if err := fs.Parse(args); err != nil {
		return err
	}
	saved, err := e.ledger.Service.SaveFarmer(ctx, f.form(""))
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintf(e.out, "Saved bill #%s for %s: %s\n", saved.BillNo, saved.Name, core.FormatRupees(saved.Total))
	return e.warn(err)
}

func cmdEditFarmer(ctx context.Context, e *env, args []string) error {
	// The id comes first so the flags can default to the stored values.
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(e.errOut, "Usage: harvester edit-farmer ID [flags]")
		return errUsage
	}
	existing, err := e.ledger.Store.Farmer(args[0])
	if err != nil {
		return err
	}
	fs := newFlagSet(e, "edit-farmer")
	var f farmerFlags
	f.register(fs, formOf(existing))
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	saved, err := e.ledger.Service.SaveFarmer(ctx, f.form(existing.ID))
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintf(e.out, "Updated bill #%s for %s: %s, balance %s\n",
		saved.BillNo, saved.Name, core.FormatRupees(saved.Total), core.FormatRupees(saved.Balance()))
	return e.warn(err)
}

func cmdDeleteFarmer(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "delete-farmer")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	id, err := oneArg(fs, args, "a bill id")
	if err != nil {
		return err
	}
	r, err := e.ledger.Store.Farmer(id)
	if err != nil {
		return err
	}
	if !*yes && !e.confirm(fmt.Sprintf("Delete bill #%s for %s?", r.BillNo, r.Name)) {
		return core.ErrUserCancelled
	}
	err = e.ledger.Service.DeleteFarmer(ctx, id)
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintf(e.out, "Deleted bill #%s\n", r.BillNo)
	return e.warn(err)
}

// filterFlags holds the search and date range shared by list and summary.
type filterFlags struct {
	query, from, to, preset string
}

func (f *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.query, "q", "", "match name, place, contact, crop or bill number")
	fs.StringVar(&f.preset, "range", "", "today, yesterday, month or all")
	fs.StringVar(&f.from, "from", "", "first date (YYYY-MM-DD), overrides -range")
	fs.StringVar(&f.to, "to", "", "last date (YYYY-MM-DD), overrides -range")
}

func (f *filterFlags) filter(e *env) (core.Filter, error) {
	from, to, err := core.PresetRange(f.preset, e.now())
	if err != nil {
		return core.Filter{}, err
	}
	if f.from != "" {
		if from, err = core.ParseDate(f.from); err != nil {
			return core.Filter{}, &core.ValidationError{Field: "from", Reason: "must be a YYYY-MM-DD date"}
		}
	}
	if f.to != "" {
		if to, err = core.ParseDate(f.to); err != nil {
			return core.Filter{}, &core.ValidationError{Field: "to", Reason: "must be a YYYY-MM-DD date"}
		}
	}
	return core.Filter{Query: strings.TrimSpace(f.query), From: from, To: to}, nil
}

func cmdList(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "list")
	var ff filterFlags
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ff.filter(e)
	if err != nil {
		return err
	}
	records := e.ledger.Store.Farmers(f)
	overdue := e.ledger.Service.Overdue()

	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BILL\tDATE\tNAME\tPLACE\tCROP\tACRES\tTOTAL\tPAID\tBALANCE\tSTATUS\tID")
	for _, r := range records {
		status := string(r.Status)
		if n, ok := overdue[r.ID]; ok {
			status += " (" + n.String() + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.BillNo, r.Date.Display(), r.Name, r.Place, r.Crop,
			core.FormatAcres(r.Acres), core.FormatRupees(r.Total),
			core.FormatRupees(r.Paid()), core.FormatRupees(r.Balance()),
			status, r.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d bill(s)\n", len(records))
	return nil
}

func cmdAddExpense(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "add-expense")
	date := fs.String("date", e.now().Format(dateLayout), "expense date (YYYY-MM-DD)")
	category := fs.String("category", "", "expense category, e.g. Diesel")
	desc := fs.String("desc", "", "description")
	amount := fs.String("amount", "", "amount spent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	saved, err := e.ledger.Service.SaveExpense(ctx, services.ExpenseForm{
		Date:     *date,
		Category: *category,
		Desc:     *desc,
		Amount:   *amount,
	})
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintf(e.out, "Saved expense %s: %s %s\n", saved.ID, saved.Category, core.FormatRupees(saved.Amount))
	return e.warn(err)
}

func cmdDeleteExpense(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "delete-expense")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	id, err := oneArg(fs, args, "an expense id")
	if err != nil {
		return err
	}
	if !*yes && !e.confirm("Delete expense "+id+"?") {
		return core.ErrUserCancelled
	}
	err = e.ledger.Service.DeleteExpense(ctx, id)
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintf(e.out, "Deleted expense %s\n", id)
	return e.warn(err)
}

func cmdExpenses(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "expenses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	expenses := e.ledger.Store.Expenses()
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCATEGORY\tDESCRIPTION\tAMOUNT\tID")
	total := core.Decimal{}
	for _, x := range expenses {
		total = total.Add(x.Amount)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			x.Date.Display(), x.Category, x.Desc, core.FormatRupees(x.Amount), x.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d expense(s), total %s\n", len(expenses), core.FormatRupees(total))
	return nil
}

func cmdSummary(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "summary")
	var ff filterFlags
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ff.filter(e)
	if err != nil {
		return err
	}
	s := e.ledger.Service.Summary(f)
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Bills\t%d\n", s.Count)
	fmt.Fprintf(tw, "Acres\t%s\n", core.FormatAcres(s.Acres))
	fmt.Fprintf(tw, "Revenue\t%s\n", core.FormatRupees(s.Revenue))
	fmt.Fprintf(tw, "Pending\t%s\n", core.FormatRupees(s.Pending))
	fmt.Fprintf(tw, "Collected\t%s\n", core.FormatRupees(s.Collected))
	fmt.Fprintf(tw, "Expenses\t%s\n", core.FormatRupees(s.Expenses))
	fmt.Fprintf(tw, "Net profit\t%s\n", core.FormatRupees(s.NetProfit))
	return tw.Flush()
}

func cmdCharts(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "charts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := e.ledger.Service.Charts()
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tCOLLECTED\tSPENT")
	for _, m := range c.Monthly {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Label, core.FormatRupees(m.Collected), core.FormatRupees(m.Expenses))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CROP\tREVENUE\t")
	for _, x := range c.Crops {
		fmt.Fprintf(tw, "%s\t%s\t\n", x.Name, core.FormatRupees(x.Amount))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CATEGORY\tSPENT\t")
	for _, x := range c.Categories {
		fmt.Fprintf(tw, "%s\t%s\t\n", x.Name, core.FormatRupees(x.Amount))
	}
	return tw.Flush()
}

func cmdShare(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "share")
	send := fs.Bool("send", false, "deliver the bill through the WhatsApp Cloud API")
	id, err := oneArg(fs, args, "a bill id")
	if err != nil {
		return err
	}
	r, err := e.ledger.Store.Farmer(id)
	if err != nil {
		return err
	}
	if !*send {
		text := share.Text(r)
		fmt.Fprintln(e.out, text)
		fmt.Fprintln(e.out)
		fmt.Fprintln(e.out, share.WhatsAppLink(text))
		return nil
	}
	if e.ledger.WhatsApp == nil {
		return fmt.Errorf("WhatsApp delivery is not configured (set WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID)")
	}
	msgID, err := e.ledger.WhatsApp.SendBill(ctx, r)
	if err != nil {
		return fmt.Errorf("send bill #%s: %w", r.BillNo, err)
	}
	fmt.Fprintf(e.out, "Sent bill #%s to %s (message %s)\n", r.BillNo, r.Contact, msgID)
	return nil
}

func cmdReceipt(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "receipt")
	out := fs.String("o", "", "output file (default: EXPORT_DIR/Receipt_<name>.png)")
	id, err := oneArg(fs, args, "a bill id")
	if err != nil {
		return err
	}
	r, err := e.ledger.Store.Farmer(id)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = filepath.Join(e.cfg.ExportDir, receipt.FileName(r))
	}
	if err := writeFile(path, func(f *os.File) error { return receipt.Encode(f, r) }); err != nil {
		return err
	}
	fmt.Fprintln(e.out, path)
	return nil
}

func cmdExport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "export")
	out := fs.String("o", "", "output file (default: EXPORT_DIR/Harvester_Farmers_<date>.xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = filepath.Join(e.cfg.ExportDir, export.FileName(e.now()))
	}
	records := e.ledger.Store.Farmers(core.Filter{})
	if err := writeFile(path, func(f *os.File) error { return export.WriteFarmersXLSX(f, records) }); err != nil {
		return err
	}
	fmt.Fprintln(e.out, path)
	return nil
}

func cmdOpen(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "open")
	path, err := oneArg(fs, args, "a database file")
	if err != nil {
		return err
	}
	// A file that cannot be read is a failure here, not a replica warning.
	if _, err := dbfile.Read(path); err != nil {
		return err
	}
	err = e.ledger.Service.OpenDatabase(ctx, path)
	if err != nil && !core.IsWarning(err) {
		return err
	}
	doc := e.ledger.Store.Snapshot()
	fmt.Fprintf(e.out, "Opened %s: %d bill(s), %d expense(s)\n", path, len(doc.Farmers), len(doc.Expenses))
	return e.warn(err)
}

func cmdConnect(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "connect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	err := e.ledger.Service.ConnectDatabase(ctx, fs.Arg(0))
	if services.IsCancelled(err) {
		return nil
	}
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintf(e.out, "Connected %s\n", fs.Arg(0))
	return e.warn(err)
}

func cmdBackup(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "backup")
	dir := fs.String("dir", e.cfg.ExportDir, "directory for the backup file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := e.ledger.Service.Backup(ctx, *dir)
	if err != nil && !core.IsWarning(err) {
		return err
	}
	fmt.Fprintln(e.out, path)
	return e.warn(err)
}

func cmdBackupStatus(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "backup-status")
	days := fs.Int("days", e.cfg.BackupReminderDays, "days before a backup is considered stale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := e.ledger.Service.BackupStatus(ctx, *days)
	if err != nil {
		return err
	}
	switch {
	case st.Due:
		fmt.Fprintln(e.out, st.Message())
	case st.LastBackup.IsZero():
		fmt.Fprintln(e.out, "No backup taken yet.")
	default:
		fmt.Fprintf(e.out, "Last backup %d day(s) ago.\n", int(st.Days))
	}
	return nil
}

func cmdServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "serve")
	port := fs.String("port", e.cfg.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := *e.cfg
	cfg.Port = *port
	return cli.Serve(ctx, &cfg, e.ledger, e.logger)
}

// warn reports a change that was applied although a replica missed it.
func (e *env) warn(err error) error {
	if err != nil && core.IsWarning(err) {
		fmt.Fprintln(e.errOut, "warning:", err)
		return nil
	}
	return err
}

// confirm asks a yes/no question on in; anything but y or yes is a no.
func (e *env) confirm(question string) bool {
	fmt.Fprintf(e.errOut, "%s [y/N] ", question)
	line, _ := bufio.NewReader(e.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// writeFile creates path and its directory, runs write and closes the file,
// removing it again when write fails.
func writeFile(path string, write func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
