package main

import (
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/models"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"bitbucket.org/mmdatafocus/temple_backend/workflow"
	"github.com/gin-gonic/gin"
)

// respondError maps typed operation errors to HTTP statuses. Untyped errors
// are internal and never leak details to the client.
func respondError(c *gin.Context, err error) {
	kind := models.ErrorKind(err)
	switch kind {
	case models.ErrKindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": kind})
	case models.ErrKindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "kind": kind})
	case models.ErrKindTokenNotFound,
		models.ErrKindSaleNotFound,
		models.ErrKindReconciliationNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": kind})
	case models.ErrKindTokenUnavailable,
		models.ErrKindDuplicateSerial,
		models.ErrKindDuplicateReconciliation,
		models.ErrKindAlreadyApproved,
		models.ErrKindUnresolvedDiscrepancy,
		models.ErrKindReconciliationLocked:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": kind})
	default:
		if err == utils.ErrorRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "NOT_FOUND"})
			return
		}
		config.LogError(config.GetLogger(), "handlers.go", "respondError", "internal error", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "kind": models.ErrKindValidation})
		return 0, false
	}
	return id, true
}

// --- auth ---

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": ok})
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required"})
			return
		}
		user, err := models.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// --- tokens ---

type addTokensRequest struct {
	Tokens []*models.NewTokenUnit `json:"tokens" binding:"required"`
}

func addTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addTokensRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tokens are required"})
			return
		}
		units, err := models.AddTokens(c.Request.Context(), req.Tokens)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"added": len(units), "tokens": units})
	}
}

func tokenStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sevaId *int
		if raw := c.Query("seva_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seva_id"})
				return
			}
			sevaId = &id
		}
		summaries, err := models.GetTokenInventoryStatus(c.Request.Context(), sevaId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summaries)
	}
}

type tokenActionRequest struct {
	SevaId       int    `json:"seva_id" binding:"required"`
	SerialNumber string `json:"serial_number" binding:"required"`
}

func markTokenUsedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seva_id and serial_number are required"})
			return
		}
		unit, err := models.MarkTokenUsed(c.Request.Context(), req.SevaId, req.SerialNumber)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, unit)
	}
}

func markTokenDamagedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seva_id and serial_number are required"})
			return
		}
		unit, err := models.MarkTokenDamaged(c.Request.Context(), req.SevaId, req.SerialNumber)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, unit)
	}
}

// expireSweepHandler runs one expiry sweep pass on demand (admin only). The
// periodic background job does the same thing; this exists for operational use.
func expireSweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		count, err := models.MarkExpiredTokens(c.Request.Context(), time.Now().UTC())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"expired": count})
	}
}

// --- sales ---

func recordSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSale
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sale payload: " + err.Error()})
			return
		}
		sale, err := models.RecordSale(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	}
}

type voidSaleRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func voidSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req voidSaleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a void reason is required"})
			return
		}
		sale, err := models.VoidSale(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	}
}

func getSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sale, err := models.GetSale(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	}
}

func listSalesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var date *time.Time
		if raw := c.Query("date"); raw != "" {
			d, err := utils.ParseDateOnly(raw, config.TempleTimezone())
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be in YYYY-MM-DD format"})
				return
			}
			date = &d
		}
		var counter *int
		if raw := c.Query("counter_number"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counter_number"})
				return
			}
			counter = &n
		}
		sales, err := models.GetSales(c.Request.Context(), date, counter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sales)
	}
}

// --- reconciliations ---

type createReconciliationRequest struct {
	Date string `json:"date" binding:"required"`
}

func createReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReconciliationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
			return
		}
		recon, err := workflow.CreateDayReconciliation(c.Request.Context(), req.Date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recon)
	}
}

func getReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		recon, err := models.GetReconciliation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recon)
	}
}

func getReconciliationByDateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("date")
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
			return
		}
		date, err := utils.ParseDateOnly(raw, config.TempleTimezone())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be in YYYY-MM-DD format"})
			return
		}
		recon, err := models.GetReconciliationByDate(c.Request.Context(), date)
		if err != nil {
			respondError(c, err)
			return
		}
		if recon == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no reconciliation for " + raw, "kind": models.ErrKindReconciliationNotFound})
			return
		}
		c.JSON(http.StatusOK, recon)
	}
}

func manualCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.ManualCountInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "counted_cash_amount is required"})
			return
		}
		recon, err := workflow.RecordManualCount(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recon)
	}
}

func approveReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		recon, err := workflow.ApproveDayReconciliation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recon)
	}
}

func addAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.NewAdjustmentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount and reason are required"})
			return
		}
		adjustment, err := workflow.AddReconciliationAdjustment(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, adjustment)
	}
}

func listAdjustmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		adjustments, err := models.GetReconciliationAdjustments(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, adjustments)
	}
}

// --- sevas ---

func createSevaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSeva
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seva payload: " + err.Error()})
			return
		}
		seva, err := models.CreateSeva(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, seva)
	}
}

func updateSevaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewSeva
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seva payload: " + err.Error()})
			return
		}
		seva, err := models.UpdateSeva(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, seva)
	}
}

func listSevasHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if raw := c.Query("name"); raw != "" {
			name = &raw
		}
		activeOnly := c.Query("active") == "true"
		sevas, err := models.GetSevas(c.Request.Context(), name, activeOnly)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sevas)
	}
}

func getSevaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		seva, err := models.GetSeva(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, seva)
	}
}

type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func toggleSevaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		seva, err := models.ToggleActiveSeva(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, seva)
	}
}

// --- devotees ---

func createDevoteeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDevotee
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid devotee payload: " + err.Error()})
			return
		}
		devotee, err := models.CreateDevotee(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, devotee)
	}
}

func updateDevoteeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewDevotee
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid devotee payload: " + err.Error()})
			return
		}
		devotee, err := models.UpdateDevotee(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, devotee)
	}
}

func listDevoteesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name, mobile *string
		if raw := c.Query("name"); raw != "" {
			name = &raw
		}
		if raw := c.Query("mobile"); raw != "" {
			mobile = &raw
		}
		devotees, err := models.GetDevotees(c.Request.Context(), name, mobile)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, devotees)
	}
}

func getDevoteeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		devotee, err := models.GetDevotee(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, devotee)
	}
}

// --- users / histories / ops ---

func requireAdmin(c *gin.Context) bool {
	role, _ := utils.GetUserRoleFromContext(c.Request.Context())
	if models.UserRole(role) != models.UserRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required", "kind": models.ErrKindForbidden})
		return false
	}
	return true
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user payload: " + err.Error()})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		users, err := models.GetAllUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func listHistoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var referenceId, referenceType *string
		if raw := c.Query("reference_id"); raw != "" {
			referenceId = &raw
		}
		if raw := c.Query("reference_type"); raw != "" {
			referenceType = &raw
		}
		var userId *int
		if raw := c.Query("user_id"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
				return
			}
			userId = &n
		}
		histories, err := models.GetHistories(c.Request.Context(), referenceId, referenceType, userId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	}
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

// outboxReplayHandler requeues a DEAD/FAILED outbox row (admin only).
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}

		db := config.GetDB()
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.DayClosePostingRecord{}).
			Where("id = ?", req.RecordId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}

func listPostingRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		records, err := models.GetPostingRecordsForReconciliation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}
