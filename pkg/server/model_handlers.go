package server

import (
	"github.com/labstack/echo/v4"

	"github.com/aingdesk/daemon/pkg/apierr"
)

func (s *Server) handleInstallModel(c echo.Context) error {
	var body struct {
		ModelName string `json:"model_name"`
		Mirror    string `json:"mirror"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	job, err := s.models.Install(c.Request().Context(), body.ModelName, body.Mirror)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, job)
}

func (s *Server) handleInstallStatus(c echo.Context) error {
	job, err := s.models.GetJob(c.QueryParam("job_id"))
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, job)
}

func (s *Server) handleReconnectDownload(c echo.Context) error {
	var body struct {
		JobID  string `json:"job_id"`
		Mirror string `json:"mirror"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	job, err := s.models.ReconnectDownload(c.Request().Context(), body.JobID, body.Mirror)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, job)
}

func (s *Server) handleUninstallModel(c echo.Context) error {
	var body struct {
		ModelName string `json:"model_name"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if err := s.models.Uninstall(c.Request().Context(), body.ModelName); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, nil)
}

func (s *Server) handleListInstalled(c echo.Context) error {
	names, err := s.models.ListInstalled(c.Request().Context())
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, names)
}

func (s *Server) handleListVisibleModels(c echo.Context) error {
	names, err := s.models.ListVisibleModels(c.Request().Context())
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, names)
}

func (s *Server) handleInstallModelManager(c echo.Context) error {
	job, err := s.models.InstallModelManager(c.Request().Context())
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, job)
}

func (s *Server) handleGetModelManagerInstallProgress(c echo.Context) error {
	job, err := s.models.ModelManagerInstallProgress()
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, job)
}
