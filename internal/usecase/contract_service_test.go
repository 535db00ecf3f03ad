package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"contract-portal-service/internal/domain"
)

// mockContractRepository はテスト用のモックリポジトリ。
type mockContractRepository struct {
	findByIDResult   *domain.Contract
	findByIDErr      error
	createErr        error
	saveErr          error
	deleteErr        error
	listResult       []*domain.Contract
	listTotal        int64
	listErr          error
	expiringResult   []*domain.Contract
	expiringErr      error
	countAllResult   int64
	countAllErr      error
	byStatusResult   []domain.StatusCount
	byTypeResult     []domain.TypeCount
	createdContracts []*domain.Contract
	savedContracts   []*domain.Contract
	deletedIDs       []string
}

func (m *mockContractRepository) Create(ctx context.Context, contract *domain.Contract) error {
	if m.createErr != nil {
		return m.createErr
	}
	if contract.ID == "" {
		contract.ID = "generated-id"
	}
	contract.CreatedAt = time.Now()
	contract.UpdatedAt = time.Now()
	m.createdContracts = append(m.createdContracts, contract)
	return nil
}

func (m *mockContractRepository) FindByID(ctx context.Context, tenantID, id string) (*domain.Contract, error) {
	return m.findByIDResult, m.findByIDErr
}

func (m *mockContractRepository) List(ctx context.Context, tenantID string, filter domain.ContractFilter) ([]*domain.Contract, int64, error) {
	return m.listResult, m.listTotal, m.listErr
}

func (m *mockContractRepository) Save(ctx context.Context, contract *domain.Contract) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.savedContracts = append(m.savedContracts, contract)
	return nil
}

func (m *mockContractRepository) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockContractRepository) FindExpiring(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Contract, error) {
	return m.expiringResult, m.expiringErr
}

func (m *mockContractRepository) CountAll(ctx context.Context, tenantID string) (int64, error) {
	return m.countAllResult, m.countAllErr
}

func (m *mockContractRepository) CountByStatus(ctx context.Context, tenantID string) ([]domain.StatusCount, error) {
	return m.byStatusResult, nil
}

func (m *mockContractRepository) CountByType(ctx context.Context, tenantID string) ([]domain.TypeCount, error) {
	return m.byTypeResult, nil
}

// mockHistoryRepository はテスト用のモック履歴リポジトリ。
type mockHistoryRepository struct {
	createErr  error
	findResult []*domain.ContractHistory
	findErr    error
	created    []*domain.ContractHistory
}

func (m *mockHistoryRepository) Create(ctx context.Context, history *domain.ContractHistory) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, history)
	return nil
}

func (m *mockHistoryRepository) FindByContractID(ctx context.Context, contractID string) ([]*domain.ContractHistory, error) {
	return m.findResult, m.findErr
}

// mockFieldCipher はテスト用のモック暗号化器。プレフィックスを付けるだけの可逆変換。
type mockFieldCipher struct {
	encryptErr error
	decryptErr error
}

func (m *mockFieldCipher) Encrypt(plaintext string) (string, error) {
	if m.encryptErr != nil {
		return "", m.encryptErr
	}
	return "enc:" + plaintext, nil
}

func (m *mockFieldCipher) Decrypt(stored string) (string, error) {
	if m.decryptErr != nil {
		return "", m.decryptErr
	}
	return strings.TrimPrefix(stored, "enc:"), nil
}

func newTestService() (*ContractService, *mockContractRepository, *mockHistoryRepository, *mockFieldCipher) {
	repo := &mockContractRepository{}
	history := &mockHistoryRepository{}
	cipher := &mockFieldCipher{}
	return NewContractService(repo, history, cipher), repo, history, cipher
}

func dec(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestContractService_Create_Success(t *testing.T) {
	svc, repo, history, _ := newTestService()

	contract, err := svc.Create(context.Background(), "tenant-001", "user-001", CreateContractInput{
		Title:         "業務委託契約",
		ContractType:  "service",
		PartyA:        "自社",
		PartyB:        "取引先A",
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount:        dec("1500000"),
		PurchasePrice: dec("1000000"),
		SellingPrice:  dec("1500000"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contract.TenantID != "tenant-001" {
		t.Errorf("want tenant_id tenant-001, got %s", contract.TenantID)
	}
	if contract.Status != domain.ContractStatusDraft {
		t.Errorf("want status draft, got %s", contract.Status)
	}
	if contract.AmountEncrypted != "enc:1500000" {
		t.Errorf("want encrypted amount, got %s", contract.AmountEncrypted)
	}
	if contract.PurchasePriceEncrypted != "enc:1000000" {
		t.Errorf("want encrypted purchase price, got %s", contract.PurchasePriceEncrypted)
	}
	if len(repo.createdContracts) != 1 {
		t.Errorf("want 1 created contract, got %d", len(repo.createdContracts))
	}
	if len(history.created) != 1 {
		t.Fatalf("want 1 history entry, got %d", len(history.created))
	}
	if history.created[0].Action != domain.HistoryActionCreated {
		t.Errorf("want action created, got %s", history.created[0].Action)
	}
}

func TestContractService_Create_NoAmounts(t *testing.T) {
	svc, _, _, _ := newTestService()

	contract, err := svc.Create(context.Background(), "tenant-001", "user-001", CreateContractInput{
		Title:        "秘密保持契約",
		ContractType: "nda",
		PartyA:       "自社",
		PartyB:       "取引先B",
		StartDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.AmountEncrypted != "" {
		t.Errorf("want empty encrypted amount, got %s", contract.AmountEncrypted)
	}
}

func TestContractService_Create_InvalidType(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), "tenant-001", "user-001", CreateContractInput{
		Title:        "契約",
		ContractType: "unknown",
		StartDate:    time.Now(),
	})
	if !errors.Is(err, domain.ErrInvalidContractType) {
		t.Errorf("want ErrInvalidContractType, got %v", err)
	}
}

func TestContractService_Create_NegativeAmount(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), "tenant-001", "user-001", CreateContractInput{
		Title:        "契約",
		ContractType: "service",
		StartDate:    time.Now(),
		Amount:       dec("-100"),
	})
	if !errors.Is(err, domain.ErrNegativeAmount) {
		t.Errorf("want ErrNegativeAmount, got %v", err)
	}
}

func TestContractService_Create_InvalidCommissionType(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), "tenant-001", "user-001", CreateContractInput{
		Title:          "契約",
		ContractType:   "service",
		StartDate:      time.Now(),
		CommissionType: "ratio",
	})
	if !errors.Is(err, domain.ErrInvalidCommissionType) {
		t.Errorf("want ErrInvalidCommissionType, got %v", err)
	}
}

func TestContractService_Get_Success(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:                     "contract-001",
		TenantID:               "tenant-001",
		Title:                  "ライセンス契約",
		AmountEncrypted:        "enc:1500000",
		PurchasePriceEncrypted: "enc:1000000",
		SellingPriceEncrypted:  "enc:1500000",
	}

	got, err := svc.Get(context.Background(), "tenant-001", "contract-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Amount == nil || got.Amount.String() != "1500000" {
		t.Errorf("want amount 1500000, got %v", got.Amount)
	}
	if !got.Finance.ActualMarginAmount.Equal(decimal.RequireFromString("500000")) {
		t.Errorf("want actual margin amount 500000, got %s", got.Finance.ActualMarginAmount)
	}
	if got.Finance.BaseMarginRate.Round(2).String() != "33.33" {
		t.Errorf("want base margin rate 33.33, got %s", got.Finance.BaseMarginRate.Round(2))
	}
}

func TestContractService_Get_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Get(context.Background(), "tenant-001", "missing")
	if !errors.Is(err, domain.ErrContractNotFound) {
		t.Errorf("want ErrContractNotFound, got %v", err)
	}
}

func TestContractService_Get_DecryptFailurePropagates(t *testing.T) {
	svc, repo, _, cipher := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:              "contract-001",
		TenantID:        "tenant-001",
		AmountEncrypted: "enc:broken",
	}
	cipher.decryptErr = domain.ErrDecryptFailed

	_, err := svc.Get(context.Background(), "tenant-001", "contract-001")
	if !errors.Is(err, domain.ErrDecryptFailed) {
		t.Errorf("want ErrDecryptFailed, got %v", err)
	}
}

func TestContractService_Get_NonDecimalPlaintext(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:              "contract-001",
		TenantID:        "tenant-001",
		AmountEncrypted: "enc:not-a-number",
	}

	_, err := svc.Get(context.Background(), "tenant-001", "contract-001")
	if !errors.Is(err, domain.ErrDecryptFailed) {
		t.Errorf("want ErrDecryptFailed, got %v", err)
	}
}

func TestContractService_List_Defaults(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.listResult = []*domain.Contract{{ID: "c1"}, {ID: "c2"}}
	repo.listTotal = 45

	page, err := svc.List(context.Background(), "tenant-001", domain.ContractFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != 1 || page.Limit != 20 {
		t.Errorf("want page 1 limit 20, got page %d limit %d", page.Page, page.Limit)
	}
	if page.TotalPages != 3 {
		t.Errorf("want 3 total pages, got %d", page.TotalPages)
	}
}

func TestContractService_Update_AmountReplaced(t *testing.T) {
	svc, repo, history, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:              "contract-001",
		TenantID:        "tenant-001",
		AmountEncrypted: "enc:1000",
	}

	contract, err := svc.Update(context.Background(), "tenant-001", "contract-001", "user-001", UpdateContractInput{
		Amount: AmountPatch{Present: true, Value: dec("2000")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contract.AmountEncrypted != "enc:2000" {
		t.Errorf("want re-encrypted amount, got %s", contract.AmountEncrypted)
	}
	if len(history.created) != 1 {
		t.Fatalf("want 1 history entry, got %d", len(history.created))
	}
	if history.created[0].Action != domain.HistoryActionUpdated {
		t.Errorf("want action updated, got %s", history.created[0].Action)
	}
}

func TestContractService_Update_AmountCleared(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:              "contract-001",
		TenantID:        "tenant-001",
		AmountEncrypted: "enc:1000",
	}

	contract, err := svc.Update(context.Background(), "tenant-001", "contract-001", "user-001", UpdateContractInput{
		Amount: AmountPatch{Present: true, Value: nil},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.AmountEncrypted != "" {
		t.Errorf("want cleared amount, got %s", contract.AmountEncrypted)
	}
}

func TestContractService_Update_AmountUntouched(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:              "contract-001",
		TenantID:        "tenant-001",
		AmountEncrypted: "enc:1000",
	}

	title := "改訂版"
	contract, err := svc.Update(context.Background(), "tenant-001", "contract-001", "user-001", UpdateContractInput{
		Title: &title,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.AmountEncrypted != "enc:1000" {
		t.Errorf("want amount unchanged, got %s", contract.AmountEncrypted)
	}
	if contract.Title != "改訂版" {
		t.Errorf("want updated title, got %s", contract.Title)
	}
}

func TestContractService_Update_HistorySnapshotsExcludeCiphertext(t *testing.T) {
	svc, repo, history, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:                     "contract-001",
		TenantID:               "tenant-001",
		Title:                  "契約",
		AmountEncrypted:        "enc:1000",
		PurchasePriceEncrypted: "enc:500",
	}

	title := "契約v2"
	_, err := svc.Update(context.Background(), "tenant-001", "contract-001", "user-001", UpdateContractInput{
		Title: &title,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, snapshot := range []map[string]interface{}{history.created[0].PreviousData, history.created[0].NewData} {
		for key, value := range snapshot {
			s, ok := value.(string)
			if ok && strings.HasPrefix(s, "enc:") {
				t.Errorf("snapshot key %s contains ciphertext: %s", key, s)
			}
		}
	}
}

func TestContractService_Delete_Success(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findByIDResult = &domain.Contract{ID: "contract-001", TenantID: "tenant-001"}

	if err := svc.Delete(context.Background(), "tenant-001", "contract-001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.deletedIDs) != 1 || repo.deletedIDs[0] != "contract-001" {
		t.Errorf("want delete of contract-001, got %v", repo.deletedIDs)
	}
}

func TestContractService_Delete_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.Delete(context.Background(), "tenant-001", "missing")
	if !errors.Is(err, domain.ErrContractNotFound) {
		t.Errorf("want ErrContractNotFound, got %v", err)
	}
}

func TestContractService_UpdateStatus_Terminated(t *testing.T) {
	svc, repo, history, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:       "contract-001",
		TenantID: "tenant-001",
		Status:   domain.ContractStatusActive,
	}

	contract, err := svc.UpdateStatus(context.Background(), "tenant-001", "contract-001", "user-001", domain.ContractStatusTerminated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.Status != domain.ContractStatusTerminated {
		t.Errorf("want status terminated, got %s", contract.Status)
	}
	if history.created[0].Action != domain.HistoryActionTerminated {
		t.Errorf("want action terminated, got %s", history.created[0].Action)
	}
}

func TestContractService_UpdateStatus_Invalid(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.UpdateStatus(context.Background(), "tenant-001", "contract-001", "user-001", "suspended")
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("want ErrInvalidStatus, got %v", err)
	}
}

func TestContractService_Renew_Success(t *testing.T) {
	svc, repo, history, _ := newTestService()
	endDate := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	repo.findByIDResult = &domain.Contract{
		ID:              "contract-001",
		TenantID:        "tenant-001",
		Title:           "保守契約",
		Status:          domain.ContractStatusActive,
		EndDate:         &endDate,
		AmountEncrypted: "enc:1000",
	}

	renewed, err := svc.Renew(context.Background(), "tenant-001", "contract-001", "user-002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if renewed.ParentContractID != "contract-001" {
		t.Errorf("want parent contract-001, got %s", renewed.ParentContractID)
	}
	if renewed.Status != domain.ContractStatusDraft {
		t.Errorf("want status draft, got %s", renewed.Status)
	}
	if renewed.ID == "contract-001" {
		t.Error("renewed contract must have a new id")
	}
	if renewed.AmountEncrypted != "enc:1000" {
		t.Errorf("want ciphertext carried over, got %s", renewed.AmountEncrypted)
	}
	if len(repo.savedContracts) != 1 || repo.savedContracts[0].Status != domain.ContractStatusRenewed {
		t.Error("original contract must be marked renewed")
	}
	if len(history.created) != 2 {
		t.Errorf("want 2 history entries, got %d", len(history.created))
	}
}

func TestContractService_Renew_AlreadyRenewed(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findByIDResult = &domain.Contract{
		ID:       "contract-001",
		TenantID: "tenant-001",
		Status:   domain.ContractStatusRenewed,
	}

	_, err := svc.Renew(context.Background(), "tenant-001", "contract-001", "user-001")
	if !errors.Is(err, domain.ErrContractAlreadyRenewed) {
		t.Errorf("want ErrContractAlreadyRenewed, got %v", err)
	}
}

func TestContractService_GetDashboard(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.countAllResult = 12
	repo.byStatusResult = []domain.StatusCount{{Status: "active", Count: 8}, {Status: "draft", Count: 4}}
	repo.byTypeResult = []domain.TypeCount{{Type: "service", Count: 7}}
	repo.expiringResult = []*domain.Contract{{ID: "c1"}, {ID: "c2"}}

	dashboard, err := svc.GetDashboard(context.Background(), "tenant-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dashboard.Total != 12 {
		t.Errorf("want total 12, got %d", dashboard.Total)
	}
	if len(dashboard.ByStatus) != 2 {
		t.Errorf("want 2 status counts, got %d", len(dashboard.ByStatus))
	}
	if dashboard.ExpiringIn30 != 2 {
		t.Errorf("want 2 expiring in 30 days, got %d", dashboard.ExpiringIn30)
	}
}

func TestContractService_ExpiryNotifications(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	endIn0 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	endIn5 := time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC)
	endIn20 := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)

	svc, repo, _, _ := newTestService()
	repo.expiringResult = []*domain.Contract{
		{ID: "today", EndDate: &endIn0, NotifyOnExpiry: true},
		{ID: "week", EndDate: &endIn5, NotifyBefore7Days: true},
		{ID: "month", EndDate: &endIn20, NotifyBefore30Days: true},
		{ID: "silent", EndDate: &endIn5},
	}

	notices, err := svc.ExpiryNotifications(context.Background(), "tenant-001", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notices) != 3 {
		t.Fatalf("want 3 notices, got %d", len(notices))
	}

	kinds := map[string]domain.ExpiryNoticeKind{}
	days := map[string]int{}
	for _, n := range notices {
		kinds[n.Contract.ID] = n.Kind
		days[n.Contract.ID] = n.DaysLeft
	}
	if kinds["today"] != domain.ExpiryNoticeOnDay || days["today"] != 0 {
		t.Errorf("want on_expiry with 0 days, got %s %d", kinds["today"], days["today"])
	}
	if kinds["week"] != domain.ExpiryNotice7Days || days["week"] != 5 {
		t.Errorf("want before_7_days with 5 days, got %s %d", kinds["week"], days["week"])
	}
	if kinds["month"] != domain.ExpiryNotice30Days || days["month"] != 20 {
		t.Errorf("want before_30_days with 20 days, got %s %d", kinds["month"], days["month"])
	}
}

func TestContractService_GetHistory_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.GetHistory(context.Background(), "tenant-001", "missing")
	if !errors.Is(err, domain.ErrContractNotFound) {
		t.Errorf("want ErrContractNotFound, got %v", err)
	}
}

func TestContractService_HistoryFailureDoesNotBlock(t *testing.T) {
	svc, _, history, _ := newTestService()
	history.createErr = errors.New("insert failed")

	contract, err := svc.Create(context.Background(), "tenant-001", "user-001", CreateContractInput{
		Title:        "契約",
		ContractType: "service",
		StartDate:    time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contract.ID == "" {
		t.Error("contract must be created despite history failure")
	}
}
