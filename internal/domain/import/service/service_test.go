package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	salesrepo "github.com/FACorreiaa/sales-manager/internal/domain/sales/repository"
	salessvc "github.com/FACorreiaa/sales-manager/internal/domain/sales/service"
	"github.com/FACorreiaa/sales-manager/pkg/storage"
)

// memImports mirrors the Postgres repository, including the (company, month)
// unique index.
type memImports struct {
	files   map[uuid.UUID]*repository.ImportFile
	getErr  error
	saveErr error
}

func newMemImports() *memImports {
	return &memImports{files: map[uuid.UUID]*repository.ImportFile{}}
}

func (m *memImports) WithTx(pgx.Tx) repository.ImportRepository { return m }

func (m *memImports) Create(_ context.Context, f *repository.ImportFile) ([]repository.Event, error) {
	for _, other := range m.files {
		if other.CompanyID == f.CompanyID && other.Month.Equal(f.Month) {
			return nil, common.ErrConflict
		}
	}
	f.ID = uuid.New()
	f.CreatedAt, f.UpdatedAt = time.Now(), time.Now()
	stored := *f
	m.files[f.ID] = &stored
	return repository.Diff(nil, f), nil
}

func (m *memImports) Save(_ context.Context, before, after *repository.ImportFile) ([]repository.Event, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	stored := *after
	m.files[after.ID] = &stored
	return repository.Diff(before, after), nil
}

func (m *memImports) Get(_ context.Context, id uuid.UUID) (*repository.ImportFile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	f, ok := m.files[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (m *memImports) GetForUpdate(ctx context.Context, id uuid.UUID) (*repository.ImportFile, error) {
	return m.Get(ctx, id)
}

func (m *memImports) ExistsForCompanyMonth(_ context.Context, companyID uuid.UUID, month time.Time) (bool, error) {
	for _, f := range m.files {
		if f.CompanyID == companyID && f.Month.Equal(common.FirstOfMonth(month)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memImports) List(context.Context, repository.Filter) ([]*repository.ImportFile, error) {
	var out []*repository.ImportFile
	for _, f := range m.files {
		out = append(out, f)
	}
	return out, nil
}

func (m *memImports) ListStale(_ context.Context, before time.Time, limit int) ([]*repository.ImportFile, error) {
	var out []*repository.ImportFile
	for _, f := range m.files {
		if f.Pending() && f.UpdatedAt.Before(before) && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeSales struct {
	companies  map[string]*salesrepo.Company
	aggregated [][]parser.Row
	aggErr     error
}

func newFakeSales() *fakeSales {
	return &fakeSales{companies: map[string]*salesrepo.Company{}}
}

func (f *fakeSales) FindCompanyByName(_ context.Context, name string) (*salesrepo.Company, error) {
	if c, ok := f.companies[name]; ok {
		return c, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeSales) LookupOrCreateCompany(_ context.Context, name string) (*salesrepo.Company, error) {
	if c, ok := f.companies[name]; ok {
		return c, nil
	}
	c := &salesrepo.Company{ID: uuid.New(), Name: name}
	f.companies[name] = c
	return c, nil
}

func (f *fakeSales) AggregateTx(_ context.Context, _ pgx.Tx, _ uuid.UUID, _ time.Time, rows []parser.Row) (*salessvc.AggregateResult, error) {
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	f.aggregated = append(f.aggregated, rows)
	return &salessvc.AggregateResult{Rows: len(rows)}, nil
}

type fakeTx struct{}

func (fakeTx) InTx(_ context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

type recordingPublisher struct {
	events []repository.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...repository.Event) error {
	p.events = append(p.events, events...)
	return p.err
}

type fixture struct {
	svc       *ImportService
	repo      *memImports
	sales     *fakeSales
	store     *storage.LocalStorage
	dir       string
	publisher *recordingPublisher
}

func newFixture(t *testing.T, extensions ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	f := &fixture{
		repo:      newMemImports(),
		sales:     newFakeSales(),
		store:     store,
		dir:       dir,
		publisher: &recordingPublisher{},
	}
	f.svc = NewImportService(f.repo, f.sales, store, fakeTx{}, f.publisher,
		Config{AllowedExtensions: extensions, Currency: "BRL"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func validWorkbook(t *testing.T) []byte {
	t.Helper()
	data, err := parser.Workbook(parser.DefaultHeader,
		[]any{"Coca-Cola 2L", "Bebidas", 9, "R$ 12,00", "R$ 46,70"},
		[]any{"Pão de Queijo", "Salgados", 3, 2.5, 7.5},
		[]any{"Coca-Cola 2L", "Bebidas", 7, "R$ 12,90", "R$ 90,90"},
	)
	require.NoError(t, err)
	return data
}

func july() time.Time { return time.Date(2018, time.July, 1, 0, 0, 0, 0, time.UTC) }

func (f *fixture) submit(t *testing.T, company string, content []byte) *repository.ImportFile {
	t.Helper()
	userID := uuid.New()
	res, err := f.svc.Submit(context.Background(), SubmitInput{
		UserID:      &userID,
		UserEmail:   "ana@example.com",
		CompanyName: company,
		Month:       july().AddDate(0, 0, 14),
		FileName:    "vendas.xlsx",
		Content:     content,
	})
	require.NoError(t, err)
	return res.Import
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "  CompanyX ", validWorkbook(t))

	assert.Equal(t, repository.StatusProcessing, record.Status)
	assert.Equal(t, july(), record.Month)
	assert.Equal(t, 1, record.Revision)
	assert.Equal(t, "CompanyX", record.CompanyName)
	assert.Contains(t, f.sales.companies, "CompanyX")
	assert.Equal(t, []repository.Event{repository.FileReplaced{ImportID: record.ID, Revision: 1}}, f.publisher.events)

	_, err := os.Stat(filepath.Join(f.dir, filepath.FromSlash(record.FilePath)))
	assert.NoError(t, err, "blob is stored")
}

func TestSubmit_SuccessMessage(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Submit(context.Background(), SubmitInput{CompanyName: "CompanyX", Month: july(), FileName: "a.xlsx", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "Arquivo adicionado! Assim que for importado você será notificado.", res.Message)
	assert.Nil(t, res.Import.UserID)
}

func TestSubmit_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "CompanyX", validWorkbook(t))

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		CompanyName: "CompanyX",
		Month:       time.Date(2018, time.July, 30, 0, 0, 0, 0, time.UTC),
		FileName:    "vendas.xlsx",
		Content:     validWorkbook(t),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Equal(t, "O arquivo do mês de Julho de 2018 já foi importado para CompanyX", err.Error())

	// Another month of the same company is fine
	_, err = f.svc.Submit(context.Background(), SubmitInput{
		CompanyName: "CompanyX",
		Month:       time.Date(2018, time.August, 1, 0, 0, 0, 0, time.UTC),
		FileName:    "vendas.xlsx",
		Content:     validWorkbook(t),
	})
	assert.NoError(t, err)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		in     SubmitInput
		fields map[string]string
	}{
		{
			name: "missing fields",
			in:   SubmitInput{},
			fields: map[string]string{
				"company": "Este campo é obrigatório.",
				"month":   "Este campo é obrigatório.",
				"file":    "Este campo é obrigatório.",
			},
		},
		{
			name:   "empty file",
			in:     SubmitInput{CompanyName: "CompanyX", Month: july(), FileName: "vendas.xlsx"},
			fields: map[string]string{"file": "O arquivo enviado está vazio."},
		},
		{
			name:   "wrong extension",
			in:     SubmitInput{CompanyName: "CompanyX", Month: july(), FileName: "vendas.xls", Content: []byte("x")},
			fields: map[string]string{"file": "Arquivo não suportado. Extensões válidas: xlsx"},
		},
		{
			name:   "bad email",
			in:     SubmitInput{UserEmail: "nope", CompanyName: "CompanyX", Month: july(), FileName: "vendas.xlsx", Content: []byte("x")},
			fields: map[string]string{"UserEmail": "Informe um endereço de email válido."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), tt.in)

			var verrs common.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			got := map[string]string{}
			for _, e := range verrs {
				if _, seen := got[e.Field]; !seen {
					got[e.Field] = e.Message
				}
			}
			for field, msg := range tt.fields {
				assert.Equal(t, msg, got[field], field)
			}
			assert.Empty(t, f.sales.companies, "company is created only after validation")
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestSubmit_ConfiguredExtensions(t *testing.T) {
	f := newFixture(t, "xlsx", "csv")
	_, err := f.svc.Submit(context.Background(), SubmitInput{CompanyName: "CompanyX", Month: july(), FileName: "VENDAS.CSV", Content: []byte("a;b")})
	assert.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), SubmitInput{CompanyName: "CompanyX", Month: july().AddDate(0, 1, 0), FileName: "vendas.ods", Content: []byte("a")})
	assert.EqualError(t, err, "file: Arquivo não suportado. Extensões válidas: xlsx, csv")
}

func TestSubmit_PublishFailureStillAccepts(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")
	record := f.submit(t, "CompanyX", validWorkbook(t))
	assert.True(t, record.Pending())
}

func TestProcess_Imported(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "CompanyX", validWorkbook(t))
	f.publisher.events = nil

	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, res.Outcome)
	assert.Equal(t, 3, res.Rows)

	require.Len(t, f.sales.aggregated, 1)
	rows := f.sales.aggregated[0]
	assert.Equal(t, "Coca-Cola 2L", rows[0].Product)
	assert.Equal(t, "90.90", rows[2].Total.String())

	stored := f.repo.files[record.ID]
	assert.Equal(t, repository.StatusImported, stored.Status)
	assert.Equal(t, 1, stored.ProcessedRevision)
	assert.Equal(t, []repository.Event{
		repository.StatusChanged{ImportID: record.ID, From: repository.StatusProcessing, To: repository.StatusImported},
	}, f.publisher.events)
}

func TestProcess_Redelivery(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "CompanyX", validWorkbook(t))
	job := ImportJob{ImportID: record.ID, Revision: 1}

	_, err := f.svc.Process(context.Background(), job)
	require.NoError(t, err)
	res, err := f.svc.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Len(t, f.sales.aggregated, 1, "rows are aggregated once")
}

func TestProcess_RejectedFile(t *testing.T) {
	f := newFixture(t)
	bad, err := parser.Workbook(parser.DefaultHeader,
		[]any{"Coca-Cola 2L", "Bebidas", 9, "R$ 12,00", "R$ 46,70"},
		[]any{"Pão de Queijo", "Salgados", "três", 2.5, 7.5},
	)
	require.NoError(t, err)
	record := f.submit(t, "CompanyX", bad)
	f.publisher.events = nil

	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, 3, res.Rejection.Row)

	assert.Empty(t, f.sales.aggregated)
	assert.Equal(t, repository.StatusError, f.repo.files[record.ID].Status)
	assert.Equal(t, []repository.Event{
		repository.StatusChanged{ImportID: record.ID, From: repository.StatusProcessing, To: repository.StatusError},
	}, f.publisher.events)
}

func TestProcess_HeaderOnlyIsAnError(t *testing.T) {
	f := newFixture(t)
	data, err := parser.Workbook(parser.DefaultHeader)
	require.NoError(t, err)
	record := f.submit(t, "CompanyX", data)

	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
}

func TestProcess_NotAWorkbook(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "CompanyX", []byte("just some text"))

	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
}

func TestProcess_CSVContentNeedsCSVAllowed(t *testing.T) {
	csvData := parser.SalesCSV(parser.NewTestDataGeneratorWithSeed(7).Sales(4))

	f := newFixture(t)
	record := f.submit(t, "CompanyX", csvData)
	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)

	f = newFixture(t, "xlsx", "csv")
	record = f.submit(t, "CompanyX", csvData)
	res, err = f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, res.Outcome)
	assert.Equal(t, 4, res.Rows)
}

func TestProcess_InfrastructureErrorsPropagate(t *testing.T) {
	t.Run("aggregate", func(t *testing.T) {
		f := newFixture(t)
		record := f.submit(t, "CompanyX", validWorkbook(t))
		f.sales.aggErr = errors.New("deadlock detected")

		_, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
		assert.EqualError(t, err, "deadlock detected")
		assert.Equal(t, repository.StatusProcessing, f.repo.files[record.ID].Status)
		assert.True(t, f.repo.files[record.ID].Pending())
	})

	t.Run("missing blob", func(t *testing.T) {
		f := newFixture(t)
		record := f.submit(t, "CompanyX", validWorkbook(t))
		require.NoError(t, f.store.Delete(context.Background(), record.FilePath))

		_, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("store", func(t *testing.T) {
		f := newFixture(t)
		f.repo.getErr = errors.New("connection refused")
		_, err := f.svc.Process(context.Background(), ImportJob{ImportID: uuid.New(), Revision: 1})
		assert.Error(t, err)
	})
}

func TestProcess_DeletedRecord(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: uuid.New(), Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
}

func TestReplaceFile(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "CompanyX", []byte("broken"))
	_, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	require.Equal(t, repository.StatusError, f.repo.files[record.ID].Status)
	f.publisher.events = nil

	replaced, err := f.svc.ReplaceFile(context.Background(), record.ID, "vendas-corrigido.xlsx", validWorkbook(t))
	require.NoError(t, err)
	assert.Equal(t, 2, replaced.Revision)
	assert.Equal(t, repository.StatusProcessing, replaced.Status)
	assert.Equal(t, []repository.Event{
		repository.FileReplaced{ImportID: record.ID, Revision: 2},
		repository.StatusChanged{ImportID: record.ID, From: repository.StatusError, To: repository.StatusProcessing},
	}, f.publisher.events)

	_, err = os.Stat(filepath.Join(f.dir, filepath.FromSlash(record.FilePath)))
	assert.True(t, os.IsNotExist(err), "old blob is removed")

	// A late delivery of the old revision is ignored
	res, err := f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)

	res, err = f.svc.Process(context.Background(), ImportJob{ImportID: record.ID, Revision: 2})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, res.Outcome)
	assert.Equal(t, repository.StatusImported, f.repo.files[record.ID].Status)
}

func TestReplaceFile_Validation(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "CompanyX", validWorkbook(t))

	_, err := f.svc.ReplaceFile(context.Background(), record.ID, "vendas.pdf", []byte("x"))
	assert.ErrorIs(t, err, common.ErrBadRequest)

	_, err = f.svc.ReplaceFile(context.Background(), record.ID, "vendas.xlsx", nil)
	assert.ErrorIs(t, err, common.ErrBadRequest)

	_, err = f.svc.ReplaceFile(context.Background(), uuid.New(), "vendas.xlsx", []byte("x"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRequeueStale(t *testing.T) {
	f := newFixture(t)
	record := f.submit(t, "CompanyX", validWorkbook(t))
	f.repo.files[record.ID].UpdatedAt = time.Now().Add(-time.Hour)
	f.publisher.events = nil

	n, err := f.svc.RequeueStale(context.Background(), 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []repository.Event{repository.FileReplaced{ImportID: record.ID, Revision: 1}}, f.publisher.events)
}
