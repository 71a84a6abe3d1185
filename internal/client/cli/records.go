package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
)

var errUsage = errors.New("wrong arguments, type 'help' for usage")

func parseEntityID(args []string) (api.Entity, int64, error) {
	if len(args) < 2 {
		return "", 0, errUsage
	}
	e, err := api.ParseEntity(args[0])
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad id %q", args[1])
	}
	return e, id, nil
}

func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	e, err := api.ParseEntity(args[0])
	if err != nil {
		return err
	}
	var rec api.Record
	if len(args) == 1 {
		rec, err = promptRequired(a.reader, a.out, e)
	} else {
		rec, err = models.FieldsFromStrings(args[1:])
	}
	if err != nil {
		return err
	}
	saved, err := a.recordsService.Add(ctx, e, rec)
	if err != nil {
		return err
	}
	id, _ := api.RecordID(saved)
	fmt.Fprintf(a.out, "Added %s #%d\n", e, id)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	e := api.Papers
	if len(args) > 0 {
		var err error
		if e, err = api.ParseEntity(args[0]); err != nil {
			return err
		}
	}
	recs, err := a.recordsService.GetAll(ctx, e)
	if err != nil {
		return err
	}

	header := lipgloss.NewRenderer(a.out).NewStyle().Bold(true)
	fmt.Fprintln(a.out, header.Render(fmt.Sprintf("%s (%d)", e, len(recs))))
	for _, r := range recs {
		id, _ := api.RecordID(r)
		fmt.Fprintf(a.out, "  #%-5d %s\n", id, label(e, r))
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	e, id, err := parseEntityID(args)
	if err != nil {
		return err
	}
	rec, err := a.recordsService.GetByID(ctx, e, id)
	if err != nil {
		return err
	}
	a.printRecord(rec)
	return nil
}

func (a *App) Update(ctx context.Context, args []string) error {
	e, id, err := parseEntityID(args)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage
	}
	patch, err := models.FieldsFromStrings(args[2:])
	if err != nil {
		return err
	}
	if _, err := a.recordsService.Update(ctx, e, id, patch); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s #%d\n", e, id)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	e, id, err := parseEntityID(args)
	if err != nil {
		return err
	}
	if err := a.recordsService.Delete(ctx, e, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s #%d\n", e, id)
	return nil
}

func (a *App) Find(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	rec, err := a.recordsService.GetByExternalID(ctx, args[0])
	if err != nil {
		return err
	}
	a.printRecord(rec)
	return nil
}

func (a *App) PDF(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad id %q", args[0])
	}
	url, err := a.engine.PaperPDFURL(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, url)
	return nil
}

func (a *App) printRecord(rec api.Record) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "%s: %v\n", k, rec[k])
	}
}

func label(e api.Entity, r api.Record) string {
	switch e {
	case api.Papers:
		s := fmt.Sprint(r[models.FieldTitle])
		if st, ok := r[models.FieldReadingStatus]; ok {
			s += fmt.Sprintf(" [%v]", st)
		}
		return s
	case api.Collections:
		return fmt.Sprint(r[models.FieldName])
	}
	return fmt.Sprintf("paper #%v", r[models.FieldPaperID])
}
