package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

type taskPayload struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Status      *model.TaskStatus `json:"status"`
}

type statusPayload struct {
	Status model.TaskStatus `json:"status"`
}

type pageResponse struct {
	Data        []model.Task      `json:"data"`
	CurrentPage int               `json:"current_page"`
	LastPage    int               `json:"last_page"`
	PerPage     int               `json:"per_page"`
	Total       int64             `json:"total"`
	From        int               `json:"from"`
	To          int               `json:"to"`
	Filters     model.TaskFilters `json:"filters"`
}

type statsResponse struct {
	Counts map[model.TaskStatus]int64 `json:"counts"`
	Total  int64                      `json:"total"`
}

func newPageResponse(p *model.Page, filters model.TaskFilters) pageResponse {
	return pageResponse{
		Data:        p.Items,
		CurrentPage: p.CurrentPage,
		LastPage:    p.LastPage,
		PerPage:     p.PerPage,
		Total:       p.Total,
		From:        p.From,
		To:          p.To,
		Filters:     filters,
	}
}

func listTasks(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		filters := model.TaskFilters{
			Status: model.TaskStatus(c.QueryParam("status")),
			Search: c.QueryParam("search"),
		}
		page, err := tasks.GetAllTasksForUser(c.Request().Context(), currentUser(c), filters, pageParam(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, newPageResponse(page, filters))
	}
}

func searchTasks(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		term := c.QueryParam("search")
		page, err := tasks.SearchTasks(c.Request().Context(), currentUser(c), term, pageParam(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, newPageResponse(page, model.TaskFilters{Search: term}))
	}
}

func createTask(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskPayload
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		input := service.TaskInput{Description: req.Description, Status: req.Status}
		if req.Title != nil {
			input.Title = *req.Title
		}
		task, err := tasks.CreateTask(c.Request().Context(), currentUser(c), input)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func taskStats(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		counts, err := tasks.TaskCounts(c.Request().Context(), currentUser(c))
		if err != nil {
			return err
		}
		resp := statsResponse{Counts: counts}
		for _, n := range counts {
			resp.Total += n
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func showTask(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := loadTask(c, tasks)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := loadTask(c, tasks)
		if err != nil {
			return err
		}
		var req taskPayload
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		updated, err := tasks.UpdateTask(c.Request().Context(), task, model.TaskChanges{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := loadTask(c, tasks)
		if err != nil {
			return err
		}
		deleted, err := tasks.DeleteTask(c.Request().Context(), task)
		if err != nil {
			return err
		}
		if !deleted {
			return model.ErrNotFound
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func changeStatus(tasks *service.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := loadTask(c, tasks)
		if err != nil {
			return err
		}
		var req statusPayload
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		updated, err := tasks.ChangeTaskStatus(c.Request().Context(), task, req.Status)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, updated)
	}
}

// loadTask resolves the :id route param against the current user's tasks. Malformed ids are not found.
func loadTask(c echo.Context, tasks *service.TaskService) (*model.Task, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, model.ErrNotFound
	}
	return tasks.FindTaskForUser(c.Request().Context(), uint(id), currentUser(c))
}

func pageParam(c echo.Context) int {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil {
		return 1
	}
	return model.NormalizePage(page)
}
