package planner

import (
	"context"
	"fmt"

	"github.com/jwalitptl/roshita-planner/internal/i18n"
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/internal/workflow"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
)

// Snapshot is one fetched page of the board. It carries data only; labels are
// applied by Render so a language switch never needs another fetch.
type Snapshot struct {
	Scope   string            `json:"scope"`
	Page    appointment.Page  `json:"page"`
	Failure *workflow.Failure `json:"failure,omitempty"`
}

type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Button struct {
	Operation workflow.Operation `json:"operation"`
	Label     string             `json:"label"`
}

type Row struct {
	ID          int                     `json:"id"`
	Patient     string                  `json:"patient"`
	Doctor      string                  `json:"doctor"`
	Date        string                  `json:"date"`
	Time        string                  `json:"time"`
	Status      model.ReservationStatus `json:"status"`
	StatusLabel string                  `json:"status_label"`
	Price       model.Price             `json:"price"`
	Actions     []Button                `json:"actions"`
}

// View is the board as the UI draws it.
type View struct {
	Language   string   `json:"language"`
	RTL        bool     `json:"rtl"`
	Title      string   `json:"title"`
	Columns    []Column `json:"columns"`
	Rows       []Row    `json:"rows"`
	Empty      string   `json:"empty,omitempty"`
	Banner     string   `json:"banner,omitempty"`
	Pagination string   `json:"pagination"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
}

var columnKeys = []string{
	i18n.ColumnPatient,
	i18n.ColumnDoctor,
	i18n.ColumnDate,
	i18n.ColumnTime,
	i18n.ColumnStatus,
	i18n.ColumnPrice,
	i18n.ColumnActions,
}

var actionLabels = map[workflow.Operation]string{
	workflow.OpNoShow:   i18n.ActionNoShow,
	workflow.OpComplete: i18n.ActionDone,
	workflow.OpCancel:   i18n.ActionCancel,
}

// Board loads the appointment list and renders it for the session's language.
type Board struct {
	lister          *appointment.Lister
	store           session.Store
	defaultLanguage string
	logger          *logger.Logger
}

func NewBoard(lister *appointment.Lister, store session.Store, defaultLanguage string, log *logger.Logger) *Board {
	if log == nil {
		log = logger.Nop()
	}
	return &Board{
		lister:          lister,
		store:           store,
		defaultLanguage: defaultLanguage,
		logger:          log.With("component", "board"),
	}
}

// Load fetches the actionable reservations of scope, sorted by date, and cuts
// out one page. A failed fetch yields an empty page with a banner.
func (b *Board) Load(ctx context.Context, actor appointment.Actor, scope appointment.Scope, page, pageSize int) Snapshot {
	if pageSize <= 0 {
		pageSize = b.lister.PageSize()
	}
	snap := Snapshot{Scope: scope.String()}
	list, err := b.lister.List(ctx, actor, scope)
	if err != nil {
		f := workflow.FailedFrom(err)
		snap.Failure = &workflow.Failure{Kind: f.Kind, Message: f.Message}
		snap.Page = appointment.Paginate(nil, page, pageSize)
		return snap
	}
	snap.Page = appointment.Paginate(appointment.SortByDate(appointment.Actionable(list)), page, pageSize)
	return snap
}

// PageSize is the configured default page size.
func (b *Board) PageSize() int {
	return b.lister.PageSize()
}

// Render labels snap in lang. It is pure.
func Render(snap Snapshot, lang, fallback string) View {
	labels := i18n.For(lang, fallback)

	v := View{
		Language:   labels.Language(),
		RTL:        labels.RTL(),
		Title:      labels.T(i18n.BoardTitle),
		Columns:    make([]Column, 0, len(columnKeys)),
		Rows:       make([]Row, 0, len(snap.Page.Items)),
		Page:       snap.Page.Page,
		TotalPages: snap.Page.TotalPages,
	}
	for _, key := range columnKeys {
		v.Columns = append(v.Columns, Column{Key: key, Label: labels.T(key)})
	}

	for _, r := range snap.Page.Items {
		row := Row{
			ID:          r.ID,
			Patient:     r.Patient.FullName(),
			Doctor:      r.Doctor.Name,
			Date:        r.Date,
			Time:        r.StartTime,
			Status:      r.Status,
			StatusLabel: labels.Status(r.Status),
			Price:       r.Price,
			Actions:     []Button{},
		}
		for _, op := range workflow.Actions(r) {
			row.Actions = append(row.Actions, Button{Operation: op, Label: labels.T(actionLabels[op])})
		}
		v.Rows = append(v.Rows, row)
	}

	if snap.Failure != nil {
		v.Banner = labels.T(i18n.BoardLoadFailed)
	}
	if len(v.Rows) == 0 {
		v.Empty = labels.T(i18n.BoardEmpty)
	}
	totalPages := snap.Page.TotalPages
	if totalPages == 0 {
		totalPages = 1
	}
	v.Pagination = fmt.Sprintf(labels.T(i18n.PageOf), snap.Page.Page, totalPages)
	return v
}

// Render labels snap in the board's default language when lang is unknown.
func (b *Board) Render(snap Snapshot, lang string) View {
	return Render(snap, lang, b.defaultLanguage)
}

// Watch emits snap rendered in the session's current language, then again
// each time the session's language changes, until ctx is done or emit fails.
// The snapshot is never refetched.
func (b *Board) Watch(ctx context.Context, sessionID string, snap Snapshot, emit func(View) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, err := b.store.Subscribe(ctx, sessionID)
	if err != nil {
		return err
	}
	sess, err := b.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	lang := sess.Language()
	if err := emit(b.Render(snap, lang)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Key != model.SessionKeyLanguage || c.New == lang {
				continue
			}
			lang = c.New
			b.logger.Debug("board language changed", "session_id", sessionID, "language", lang)
			if err := emit(b.Render(snap, lang)); err != nil {
				return err
			}
		}
	}
}
