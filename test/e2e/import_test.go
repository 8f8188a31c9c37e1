// Package e2etest runs the sales import pipeline against a real PostgreSQL.
package e2etest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/sales-manager/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/sales-manager/internal/domain/import/service"
	notificationrepo "github.com/FACorreiaa/sales-manager/internal/domain/notification/repository"
	notificationservice "github.com/FACorreiaa/sales-manager/internal/domain/notification/service"
	salesrepo "github.com/FACorreiaa/sales-manager/internal/domain/sales/repository"
	salesservice "github.com/FACorreiaa/sales-manager/internal/domain/sales/service"
	"github.com/FACorreiaa/sales-manager/pkg/db"
	"github.com/FACorreiaa/sales-manager/pkg/queue"
	"github.com/FACorreiaa/sales-manager/pkg/storage"
)

type pipeline struct {
	imports       *importservice.ImportService
	sales         *salesservice.Service
	importRepo    importrepo.ImportRepository
	notifications notificationrepo.NotificationRepository
	worker        *queue.Worker
	queue         *queue.RedisQueue
}

// newPipeline wires every service the way the server does, on the database
// named by TEST_DATABASE_URL. The schema is migrated and emptied first.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set (point it at a disposable PostgreSQL to run this test)")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(db.Config{DSN: dsn, MaxConns: 4}, logger)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.RunMigrations(ctx))

	_, err = database.Pool.Exec(ctx, `TRUNCATE notifications, import_files, product_sales, product_companies, products, product_categories, companies`)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.NewRedisQueue(client, queue.Config{Name: "e2e", RetryDelay: time.Minute, MaxAttempts: 3})

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	tx := db.NewTxRunner(database.Pool)
	sales := salesservice.NewService(salesrepo.NewPostgresSalesRepository(database.Pool), tx, logger)
	notifRepo := notificationrepo.NewPostgresNotificationRepository(database.Pool)
	notifier := notificationservice.NewService(notifRepo, nil, logger)

	repo := importrepo.NewPostgresImportRepository(database.Pool)
	dispatcher := importservice.NewDispatcher(repo, importservice.NewQueueEnqueuer(q), notifier, logger)
	imports := importservice.NewImportService(repo, sales, store, tx, dispatcher, importservice.Config{}, logger)

	return &pipeline{
		imports:       imports,
		sales:         sales,
		importRepo:    repo,
		notifications: notifRepo,
		worker:        queue.NewWorker(q, imports.HandleJob, time.Millisecond, logger),
		queue:         q,
	}
}

func (p *pipeline) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		processed, err := p.worker.RunOnce(context.Background())
		require.NoError(t, err)
		if !processed {
			return n
		}
		n++
	}
}

func july() time.Time { return time.Date(2018, time.July, 1, 0, 0, 0, 0, time.UTC) }

func TestImportPipeline(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	userID := uuid.New()

	data, err := parser.Workbook(parser.DefaultHeader,
		[]any{"Coca-Cola 2L", "Bebidas", 9, "R$ 12,00", "R$ 47,30"},
		[]any{"Pão de Queijo", "Salgados", 3, 2.5, 7.5},
		[]any{"Coca-Cola 2L", "Bebidas", 7, "R$ 12,90", "R$ 90,30"},
	)
	require.NoError(t, err)

	res, err := p.imports.Submit(ctx, importservice.SubmitInput{
		UserID:      &userID,
		CompanyName: "CompanyX",
		Month:       july().AddDate(0, 0, 10),
		FileName:    "vendas.xlsx",
		Content:     data,
	})
	require.NoError(t, err)
	assert.Equal(t, importservice.SuccessMessage, res.Message)

	assert.Equal(t, 1, p.drain(t))

	record, err := p.importRepo.Get(ctx, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.StatusImported, record.Status)

	lines, err := p.sales.ListSales(ctx, salesrepo.SaleFilter{CompanyID: &record.CompanyID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	byProduct := map[string]salesservice.SaleLine{}
	for _, l := range lines {
		byProduct[l.ProductName] = l
	}
	coke := byProduct["Coca-Cola 2L"]
	assert.Equal(t, int64(16), coke.Sold)
	assert.Equal(t, "137.60", coke.Total().String())
	assert.Equal(t, "12.90", coke.Cost().String())
	assert.Equal(t, "8.60", coke.Price.String())
	assert.Equal(t, "[CompanyX]Vendas de Coca-Cola 2L em Julho de 2018", coke.Label)

	unread, err := p.notifications.ListUnread(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, importservice.VerbImported, unread[0].Verb)

	t.Run("same month is rejected", func(t *testing.T) {
		_, err := p.imports.Submit(ctx, importservice.SubmitInput{CompanyName: "CompanyX", Month: july(), FileName: "b.xlsx", Content: data})
		assert.EqualError(t, err, "O arquivo do mês de Julho de 2018 já foi importado para CompanyX")
	})

	t.Run("redelivery does not double count", func(t *testing.T) {
		_, err := p.queue.Enqueue(ctx, importservice.ImportJob{ImportID: record.ID, Revision: record.Revision})
		require.NoError(t, err)
		assert.Equal(t, 1, p.drain(t))

		lines, err := p.sales.ListSales(ctx, salesrepo.SaleFilter{CompanyID: &record.CompanyID, Limit: 10})
		require.NoError(t, err)
		for _, l := range lines {
			if l.ProductName == "Coca-Cola 2L" {
				assert.Equal(t, int64(16), l.Sold)
			}
		}
	})
}

func TestImportPipeline_BadFileThenReplace(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	userID := uuid.New()

	bad, err := parser.Workbook(parser.DefaultHeader, []any{"Coca-Cola 2L", "Bebidas", 9, "R$ 12,00"})
	require.NoError(t, err)

	res, err := p.imports.Submit(ctx, importservice.SubmitInput{UserID: &userID, CompanyName: "CompanyY", Month: july(), FileName: "vendas.xlsx", Content: bad})
	require.NoError(t, err)
	p.drain(t)

	record, err := p.importRepo.Get(ctx, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.StatusError, record.Status)

	good, err := parser.SalesWorkbook(parser.NewTestDataGeneratorWithSeed(42).Sales(25), true)
	require.NoError(t, err)
	_, err = p.imports.ReplaceFile(ctx, record.ID, "vendas-corrigido.xlsx", good)
	require.NoError(t, err)
	assert.Equal(t, 1, p.drain(t), "replacing the file enqueues exactly one job")

	record, err = p.importRepo.Get(ctx, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.StatusImported, record.Status)
	assert.Equal(t, 2, record.ProcessedRevision)

	unread, err := p.notifications.ListUnread(ctx, userID, 10)
	require.NoError(t, err)
	verbs := make([]string, 0, len(unread))
	for _, n := range unread {
		verbs = append(verbs, n.Verb)
	}
	assert.ElementsMatch(t, []string{importservice.VerbFailed, importservice.VerbImported}, verbs)
}
