package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

type createTaskRequest struct {
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	Priority              string           `json:"priority"`
	PickupAddress         *models.Address  `json:"pickupAddress"`
	DeliveryAddress       *models.Address  `json:"deliveryAddress"`
	Recipient             models.Recipient `json:"recipient"`
	AssignedTo            string           `json:"assignedTo"`
	ScheduledPickupTime   *time.Time       `json:"scheduledPickupTime"`
	ScheduledDeliveryTime *time.Time       `json:"scheduledDeliveryTime"`
	Notes                 string           `json:"notes"`
}

// updateTaskRequest carries Status only to reject it.
type updateTaskRequest struct {
	Title                 *string           `json:"title"`
	Description           *string           `json:"description"`
	Priority              *string           `json:"priority"`
	PickupAddress         *models.Address   `json:"pickupAddress"`
	DeliveryAddress       *models.Address   `json:"deliveryAddress"`
	Recipient             *models.Recipient `json:"recipient"`
	AssignedTo            *string           `json:"assignedTo"`
	ScheduledPickupTime   *time.Time        `json:"scheduledPickupTime"`
	ScheduledDeliveryTime *time.Time        `json:"scheduledDeliveryTime"`
	Notes                 *string           `json:"notes"`
	Status                *string           `json:"status"`
}

func (r updateTaskRequest) patch() models.TaskPatch {
	patch := models.TaskPatch{
		Title:                 r.Title,
		Description:           r.Description,
		PickupAddress:         r.PickupAddress,
		DeliveryAddress:       r.DeliveryAddress,
		Recipient:             r.Recipient,
		AssignedTo:            r.AssignedTo,
		ScheduledPickupTime:   r.ScheduledPickupTime,
		ScheduledDeliveryTime: r.ScheduledDeliveryTime,
		Notes:                 r.Notes,
	}
	if r.Priority != nil {
		p := models.TaskPriority(*r.Priority)
		patch.Priority = &p
	}
	return patch
}

type transitionRequest struct {
	Status          string                  `json:"status" binding:"required"`
	Note            string                  `json:"note"`
	ProofOfDelivery *models.ProofOfDelivery `json:"proofOfDelivery"`
}

func (h HandlerSet) ListTasks(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	tasks, err := h.tasks.List(c.Request.Context(), caller, c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, service.NewTaskViews(tasks), len(tasks))
}

func (h HandlerSet) GetTask(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", service.NewTaskView(task))
}

func (h HandlerSet) CreateTask(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), caller, service.CreateTaskInput{
		Title:                 req.Title,
		Description:           req.Description,
		Priority:              req.Priority,
		PickupAddress:         req.PickupAddress,
		DeliveryAddress:       req.DeliveryAddress,
		Recipient:             req.Recipient,
		AssignedTo:            req.AssignedTo,
		ScheduledPickupTime:   req.ScheduledPickupTime,
		ScheduledDeliveryTime: req.ScheduledDeliveryTime,
		Notes:                 req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "task created", service.NewTaskView(task))
}

func (h HandlerSet) UpdateTask(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Status != nil {
		h.fail(c, apperr.Validation("status can only be changed through PATCH /api/tasks/:id/status"))
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), caller, c.Param("id"), req.patch())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "task updated", service.NewTaskView(task))
}

func (h HandlerSet) DeleteTask(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "task deleted", nil)
}

func (h HandlerSet) TransitionTask(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	task, err := h.tasks.Transition(c.Request.Context(), caller, c.Param("id"), service.TransitionInput{
		Status: req.Status,
		Note:   req.Note,
		Proof:  req.ProofOfDelivery,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "task status updated", service.NewTaskView(task))
}
