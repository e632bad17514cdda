package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/models"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"bitbucket.org/mmdatafocus/temple_backend/workflow"
	"github.com/shopspring/decimal"
)

func integrationContext(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers. Redis stays off: every code path
	// must degrade cleanly without it.
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "temple_test")
	t.Setenv("REDIS_ADDRESS", "")
	t.Setenv("TOKEN_VOID_REISSUE", "")
	t.Setenv("RECON_CASH_TOLERANCE", "")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Supervisor")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	ctx = utils.SetUserRoleInContext(ctx, string(models.UserRoleSupervisor))
	return ctx
}

func seedTokenSeva(t *testing.T, ctx context.Context, serials ...string) *models.Seva {
	t.Helper()
	seva, err := models.CreateSeva(ctx, &models.NewSeva{
		Name:       fmt.Sprintf("Archana %d", time.Now().UnixNano()),
		Amount:     decimal.NewFromInt(100),
		TokenColor: "saffron",
	})
	if err != nil {
		t.Fatalf("CreateSeva: %v", err)
	}

	specs := make([]*models.NewTokenUnit, 0, len(serials))
	for i, s := range serials {
		specs = append(specs, &models.NewTokenUnit{
			SevaId:       seva.ID,
			SerialNumber: s,
			TokenNumber:  i + 1,
			BatchNumber:  "B-1",
		})
	}
	if _, err := models.AddTokens(ctx, specs); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}
	return seva
}

func recordSaleAt(t *testing.T, ctx context.Context, sevaId int, serial string, amount int64, mode models.PaymentMode, counter int) *models.Sale {
	t.Helper()
	sale, err := models.RecordSale(ctx, &models.NewSale{
		SevaId:        sevaId,
		SerialNumber:  serial,
		Amount:        decimal.NewFromInt(amount),
		PaymentMode:   mode,
		CounterNumber: counter,
	})
	if err != nil {
		t.Fatalf("RecordSale(%s): %v", serial, err)
	}
	return sale
}

func TestConcurrentSaleSingleWinner(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(counter int) {
			defer wg.Done()
			_, err := models.RecordSale(ctx, &models.NewSale{
				SevaId:        seva.ID,
				SerialNumber:  "T-001",
				Amount:        decimal.NewFromInt(100),
				PaymentMode:   models.PaymentModeCash,
				CounterNumber: counter%3 + 1,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes, unavailable int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var tua *models.TokenUnavailableError
		if errors.As(err, &tua) {
			unavailable++
			continue
		}
		t.Fatalf("unexpected error type: %v", err)
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 successful sale; got %d", successes)
	}
	if unavailable != attempts-1 {
		t.Fatalf("expected %d unavailable errors; got %d", attempts-1, unavailable)
	}

	db := config.GetDB()
	var saleCount int64
	if err := db.Model(&models.Sale{}).Where("serial_number = ?", "T-001").Count(&saleCount).Error; err != nil {
		t.Fatalf("counting sales: %v", err)
	}
	if saleCount != 1 {
		t.Fatalf("expected 1 sale row; got %d", saleCount)
	}

	unit, err := models.GetTokenUnit(ctx, seva.ID, "T-001")
	if err != nil {
		t.Fatalf("GetTokenUnit: %v", err)
	}
	if unit.Status != models.TokenStatusSold {
		t.Fatalf("expected token sold; got %s", unit.Status)
	}
}

func TestSaleOfUnknownOrClaimedToken(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")

	_, err := models.RecordSale(ctx, &models.NewSale{
		SevaId:        seva.ID,
		SerialNumber:  "T-404",
		Amount:        decimal.NewFromInt(100),
		PaymentMode:   models.PaymentModeCash,
		CounterNumber: 1,
	})
	var tnf *models.TokenNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected TokenNotFoundError; got %v", err)
	}

	recordSaleAt(t, ctx, seva.ID, "T-001", 100, models.PaymentModeCash, 1)
	_, err = models.RecordSale(ctx, &models.NewSale{
		SevaId:        seva.ID,
		SerialNumber:  "T-001",
		Amount:        decimal.NewFromInt(100),
		PaymentMode:   models.PaymentModeCash,
		CounterNumber: 2,
	})
	var tua *models.TokenUnavailableError
	if !errors.As(err, &tua) {
		t.Fatalf("expected TokenUnavailableError; got %v", err)
	}
	if tua.Status != models.TokenStatusSold {
		t.Fatalf("expected conflicting status sold; got %s", tua.Status)
	}
}

func TestDuplicateBatchRollsBackWholeLoad(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")

	_, err := models.AddTokens(ctx, []*models.NewTokenUnit{
		{SevaId: seva.ID, SerialNumber: "T-100"},
		{SevaId: seva.ID, SerialNumber: "T-001"},
		{SevaId: seva.ID, SerialNumber: "T-101"},
	})
	var dup *models.DuplicateSerialError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateSerialError; got %v", err)
	}
	if dup.SerialNumber != "T-001" {
		t.Fatalf("expected conflict on T-001; got %s", dup.SerialNumber)
	}

	// Neither of the fresh serials survived the rollback.
	for _, serial := range []string{"T-100", "T-101"} {
		_, err := models.GetTokenUnit(ctx, seva.ID, serial)
		var tnf *models.TokenNotFoundError
		if !errors.As(err, &tnf) {
			t.Fatalf("expected %s absent after rollback; got %v", serial, err)
		}
	}
}

func TestVoidSaleDefaultPolicyRetiresToken(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")

	sale := recordSaleAt(t, ctx, seva.ID, "T-001", 100, models.PaymentModeCash, 1)

	voided, err := models.VoidSale(ctx, sale.ID, "devotee changed mind")
	if err != nil {
		t.Fatalf("VoidSale: %v", err)
	}
	if !voided.IsVoided || voided.VoidReason == "" || voided.VoidedAt == nil {
		t.Fatalf("void fields not set: %+v", voided)
	}

	unit, err := models.GetTokenUnit(ctx, seva.ID, "T-001")
	if err != nil {
		t.Fatalf("GetTokenUnit: %v", err)
	}
	if unit.Status != models.TokenStatusVoid {
		t.Fatalf("default policy should retire the token; got %s", unit.Status)
	}

	// Second void is rejected.
	_, err = models.VoidSale(ctx, sale.ID, "again")
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for double void; got %v", err)
	}
}

func TestVoidSaleReissuePolicyRestoresToken(t *testing.T) {
	ctx := integrationContext(t)
	t.Setenv("TOKEN_VOID_REISSUE", "true")
	seva := seedTokenSeva(t, ctx, "T-001")

	sale := recordSaleAt(t, ctx, seva.ID, "T-001", 100, models.PaymentModeCash, 1)
	if _, err := models.VoidSale(ctx, sale.ID, "operator error"); err != nil {
		t.Fatalf("VoidSale: %v", err)
	}

	unit, err := models.GetTokenUnit(ctx, seva.ID, "T-001")
	if err != nil {
		t.Fatalf("GetTokenUnit: %v", err)
	}
	if unit.Status != models.TokenStatusAvailable {
		t.Fatalf("reissue policy should restore the token; got %s", unit.Status)
	}

	// The token can be sold again.
	recordSaleAt(t, ctx, seva.ID, "T-001", 100, models.PaymentModeUpi, 2)
}

func TestDayCloseEndToEnd(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001", "T-002", "T-003", "T-004")

	recordSaleAt(t, ctx, seva.ID, "T-001", 500, models.PaymentModeCash, 1)
	recordSaleAt(t, ctx, seva.ID, "T-002", 300, models.PaymentModeUpi, 1)
	recordSaleAt(t, ctx, seva.ID, "T-003", 200, models.PaymentModeCash, 2)

	today, err := utils.ConvertToDate(time.Now().UTC(), config.TempleTimezone())
	if err != nil {
		t.Fatalf("ConvertToDate: %v", err)
	}
	date := today.Format("2006-01-02")

	recon, err := workflow.CreateDayReconciliation(ctx, date)
	if err != nil {
		t.Fatalf("CreateDayReconciliation: %v", err)
	}
	if recon.TotalTokens != 3 ||
		!recon.TotalCash.Equal(decimal.NewFromInt(700)) ||
		!recon.TotalUpi.Equal(decimal.NewFromInt(300)) ||
		!recon.TotalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected totals: %+v", recon)
	}
	if len(recon.CounterSummaries) != 2 {
		t.Fatalf("expected 2 counter summaries; got %d", len(recon.CounterSummaries))
	}

	// A second record for the same date conflicts and leaves the first
	// record untouched.
	_, err = workflow.CreateDayReconciliation(ctx, date)
	var dupR *models.DuplicateReconciliationError
	if !errors.As(err, &dupR) {
		t.Fatalf("expected DuplicateReconciliationError; got %v", err)
	}
	unchanged, err := models.GetReconciliation(ctx, recon.ID)
	if err != nil {
		t.Fatalf("GetReconciliation after duplicate attempt: %v", err)
	}
	if unchanged.TotalTokens != recon.TotalTokens ||
		!unchanged.TotalCash.Equal(recon.TotalCash) ||
		!unchanged.TotalUpi.Equal(recon.TotalUpi) ||
		!unchanged.TotalAmount.Equal(recon.TotalAmount) ||
		unchanged.IsReconciled ||
		unchanged.CountedCashAmount != nil ||
		len(unchanged.CounterSummaries) != len(recon.CounterSummaries) {
		t.Fatalf("first record changed after duplicate attempt: %+v", unchanged)
	}

	// Approval without a manual count is rejected.
	_, err = workflow.ApproveDayReconciliation(ctx, recon.ID)
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError before manual count; got %v", err)
	}

	// Short count flags a discrepancy; approving without notes is rejected.
	if _, err := workflow.RecordManualCount(ctx, recon.ID, &workflow.ManualCountInput{
		CountedCashAmount: decimal.NewFromInt(650),
	}); err != nil {
		t.Fatalf("RecordManualCount(short): %v", err)
	}
	_, err = workflow.ApproveDayReconciliation(ctx, recon.ID)
	var disc *models.UnresolvedDiscrepancyError
	if !errors.As(err, &disc) {
		t.Fatalf("expected UnresolvedDiscrepancyError; got %v", err)
	}

	// Recount to the exact cash total and approve.
	if _, err := workflow.RecordManualCount(ctx, recon.ID, &workflow.ManualCountInput{
		CountedCashAmount: decimal.NewFromInt(700),
	}); err != nil {
		t.Fatalf("RecordManualCount(exact): %v", err)
	}
	approved, err := workflow.ApproveDayReconciliation(ctx, recon.ID)
	if err != nil {
		t.Fatalf("ApproveDayReconciliation: %v", err)
	}
	if !approved.IsReconciled || approved.ApprovedAt == nil || approved.ApprovedBy == "" {
		t.Fatalf("approval fields not set: %+v", approved)
	}

	// The outbox row was staged in the approval transaction.
	records, err := models.GetPostingRecordsForReconciliation(ctx, recon.ID)
	if err != nil {
		t.Fatalf("GetPostingRecordsForReconciliation: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 outbox record; got %d", len(records))
	}
	if records[0].PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("expected PENDING outbox record; got %s", records[0].PublishStatus)
	}
	if len(records[0].Payload) == 0 {
		t.Fatalf("expected frozen summary payload")
	}

	// The record is frozen now.
	_, err = workflow.ApproveDayReconciliation(ctx, recon.ID)
	var appr *models.AlreadyApprovedError
	if !errors.As(err, &appr) {
		t.Fatalf("expected AlreadyApprovedError; got %v", err)
	}
	_, err = workflow.RecordManualCount(ctx, recon.ID, &workflow.ManualCountInput{
		CountedCashAmount: decimal.NewFromInt(700),
	})
	if !errors.As(err, &appr) {
		t.Fatalf("expected AlreadyApprovedError on recount; got %v", err)
	}

	// Sales of the approved day can no longer be voided.
	sales, err := models.GetSales(ctx, &recon.ReconciliationDate, nil)
	if err != nil || len(sales) == 0 {
		t.Fatalf("GetSales: %v (%d rows)", err, len(sales))
	}
	_, err = models.VoidSale(ctx, sales[0].ID, "too late")
	var locked *models.ReconciliationLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected ReconciliationLockedError; got %v", err)
	}

	// Corrections from here on are adjustments.
	adjustment, err := workflow.AddReconciliationAdjustment(ctx, recon.ID, &workflow.NewAdjustmentInput{
		Amount: decimal.NewFromInt(-100),
		Reason: "counter 1 sale rung twice",
	})
	if err != nil {
		t.Fatalf("AddReconciliationAdjustment: %v", err)
	}
	if adjustment.ReconciliationId != recon.ID {
		t.Fatalf("adjustment bound to wrong record: %+v", adjustment)
	}
	adjustments, err := models.GetReconciliationAdjustments(ctx, recon.ID)
	if err != nil || len(adjustments) != 1 {
		t.Fatalf("GetReconciliationAdjustments: %v (%d rows)", err, len(adjustments))
	}
}

func TestApprovalFoldsInLateVoids(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001", "T-002")

	recordSaleAt(t, ctx, seva.ID, "T-001", 500, models.PaymentModeCash, 1)
	late := recordSaleAt(t, ctx, seva.ID, "T-002", 300, models.PaymentModeCash, 1)

	date := late.SaleDate.Format("2006-01-02")
	recon, err := workflow.CreateDayReconciliation(ctx, date)
	if err != nil {
		t.Fatalf("CreateDayReconciliation: %v", err)
	}
	if !recon.TotalCash.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected cash 800 before void; got %s", recon.TotalCash)
	}

	// Void one sale after the reconciliation was opened.
	if _, err := models.VoidSale(ctx, late.ID, "wrong seva"); err != nil {
		t.Fatalf("VoidSale: %v", err)
	}

	if _, err := workflow.RecordManualCount(ctx, recon.ID, &workflow.ManualCountInput{
		CountedCashAmount: decimal.NewFromInt(500),
	}); err != nil {
		t.Fatalf("RecordManualCount: %v", err)
	}
	approved, err := workflow.ApproveDayReconciliation(ctx, recon.ID)
	if err != nil {
		t.Fatalf("ApproveDayReconciliation: %v", err)
	}
	if !approved.TotalCash.Equal(decimal.NewFromInt(500)) || approved.TotalTokens != 1 {
		t.Fatalf("approval should refold after the void; got cash=%s tokens=%d",
			approved.TotalCash, approved.TotalTokens)
	}
	if approved.HasDiscrepancy {
		t.Fatalf("count matches refolded total; no discrepancy expected")
	}
}

func TestConcurrentReconciliationCreateSingleWinner(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")
	sale := recordSaleAt(t, ctx, seva.ID, "T-001", 100, models.PaymentModeCash, 1)
	date := sale.SaleDate.Format("2006-01-02")

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := workflow.CreateDayReconciliation(ctx, date)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var dup *models.DuplicateReconciliationError
		if errors.As(err, &dup) {
			conflicts++
			continue
		}
		t.Fatalf("unexpected error type: %v", err)
	}
	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d typed conflicts; got %d/%d", attempts-1, successes, conflicts)
	}

	db := config.GetDB()
	var count int64
	if err := db.Model(&models.Reconciliation{}).Count(&count).Error; err != nil {
		t.Fatalf("counting reconciliations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reconciliation row; got %d", count)
	}
}

func TestVoidRacingApprovalStaysConsistent(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")
	sale := recordSaleAt(t, ctx, seva.ID, "T-001", 500, models.PaymentModeCash, 1)

	recon, err := workflow.CreateDayReconciliation(ctx, sale.SaleDate.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("CreateDayReconciliation: %v", err)
	}
	// Notes up front so approval passes whether or not the void lands first.
	if _, err := workflow.RecordManualCount(ctx, recon.ID, &workflow.ManualCountInput{
		CountedCashAmount: decimal.NewFromInt(500),
		DiscrepancyNotes:  "drawer counted while a void was pending",
	}); err != nil {
		t.Fatalf("RecordManualCount: %v", err)
	}

	var wg sync.WaitGroup
	var approveErr, voidErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = workflow.ApproveDayReconciliation(ctx, recon.ID)
	}()
	go func() {
		defer wg.Done()
		_, voidErr = models.VoidSale(ctx, sale.ID, "devotee cancelled")
	}()
	wg.Wait()

	if approveErr != nil {
		t.Fatalf("ApproveDayReconciliation: %v", approveErr)
	}
	final, err := models.GetReconciliation(ctx, recon.ID)
	if err != nil {
		t.Fatalf("GetReconciliation: %v", err)
	}
	if !final.IsReconciled {
		t.Fatalf("reconciliation not frozen: %+v", final)
	}
	freshSale, err := models.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale: %v", err)
	}

	// Exactly two outcomes are legal: the void landed before the freeze and
	// the frozen totals exclude it, or the freeze won and the void was
	// rejected with the typed lock error.
	if voidErr == nil {
		if !freshSale.IsVoided {
			t.Fatalf("void reported success but sale is not voided")
		}
		if final.TotalTokens != 0 || !final.TotalCash.IsZero() {
			t.Fatalf("frozen totals include a voided sale: tokens=%d cash=%s",
				final.TotalTokens, final.TotalCash)
		}
		return
	}
	var locked *models.ReconciliationLockedError
	if !errors.As(voidErr, &locked) {
		t.Fatalf("expected ReconciliationLockedError; got %v", voidErr)
	}
	if freshSale.IsVoided {
		t.Fatalf("void was rejected but sale is voided")
	}
	if final.TotalTokens != 1 || !final.TotalCash.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("frozen totals drifted: tokens=%d cash=%s", final.TotalTokens, final.TotalCash)
	}
}

func TestApprovalRequiresSupervisorRole(t *testing.T) {
	ctx := integrationContext(t)
	seva := seedTokenSeva(t, ctx, "T-001")
	sale := recordSaleAt(t, ctx, seva.ID, "T-001", 100, models.PaymentModeCash, 1)

	recon, err := workflow.CreateDayReconciliation(ctx, sale.SaleDate.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("CreateDayReconciliation: %v", err)
	}
	if _, err := workflow.RecordManualCount(ctx, recon.ID, &workflow.ManualCountInput{
		CountedCashAmount: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("RecordManualCount: %v", err)
	}

	operatorCtx := utils.SetUserRoleInContext(ctx, string(models.UserRoleOperator))
	_, err = workflow.ApproveDayReconciliation(operatorCtx, recon.ID)
	var forb *models.ForbiddenError
	if !errors.As(err, &forb) {
		t.Fatalf("expected ForbiddenError for operator; got %v", err)
	}
}

func TestExpirySweepSkipsNonAvailable(t *testing.T) {
	ctx := integrationContext(t)

	past := time.Now().UTC().Add(-24 * time.Hour)
	seva, err := models.CreateSeva(ctx, &models.NewSeva{
		Name:   fmt.Sprintf("Abhisheka %d", time.Now().UnixNano()),
		Amount: decimal.NewFromInt(250),
	})
	if err != nil {
		t.Fatalf("CreateSeva: %v", err)
	}
	if _, err := models.AddTokens(ctx, []*models.NewTokenUnit{
		{SevaId: seva.ID, SerialNumber: "E-001", ExpiryDate: &past},
		{SevaId: seva.ID, SerialNumber: "E-002", ExpiryDate: &past},
		{SevaId: seva.ID, SerialNumber: "E-003"},
	}); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}

	// Sell one expiring token first; the sweep must not touch it.
	recordSaleAt(t, ctx, seva.ID, "E-001", 250, models.PaymentModeCash, 1)

	count, err := models.MarkExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkExpiredTokens: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired token; got %d", count)
	}

	for serial, want := range map[string]models.TokenStatus{
		"E-001": models.TokenStatusSold,
		"E-002": models.TokenStatusExpired,
		"E-003": models.TokenStatusAvailable,
	} {
		unit, err := models.GetTokenUnit(ctx, seva.ID, serial)
		if err != nil {
			t.Fatalf("GetTokenUnit(%s): %v", serial, err)
		}
		if unit.Status != want {
			t.Fatalf("%s: expected %s; got %s", serial, want, unit.Status)
		}
	}

	// Sweeping again is a no-op.
	count, err = models.MarkExpiredTokens(ctx, time.Now().UTC())
	if err != nil || count != 0 {
		t.Fatalf("expected idempotent sweep; got count=%d err=%v", count, err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("temple-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=temple_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
