//go:build windows

// Package native drives the Windows Task Scheduler through its COM
// automation interface.
package native

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

const (
	sFalse             = 0x00000001
	hrFileNotFound     = 0x80070002
	hrPathNotFound     = 0x80070003
	hrAccessDenied     = 0x80070005
	hrAlreadyExists    = 0x800700B7
	hrDispException    = 0x80020009
	hrServiceNotActive = 0x80041322
)

// Connector creates Schedule.Service connections. Each connection pins its
// goroutine to one OS thread until the service is released, so a session must
// stay on the goroutine that opened it.
type Connector struct {
	logger *logrus.Logger
}

func NewConnector(logger *logrus.Logger) *Connector {
	return &Connector{logger: logger}
}

func (c *Connector) Connect() (taskservice.Service, error) {
	runtime.LockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			runtime.UnlockOSThread()
			return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, "failed to initialise COM")
		}
	}

	fail := func(err error, msg string) (taskservice.Service, error) {
		ole.CoUninitialize()
		runtime.UnlockOSThread()
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, classify(err), msg)
	}

	unknown, err := oleutil.CreateObject("Schedule.Service")
	if err != nil {
		return fail(err, "failed to create Schedule.Service")
	}
	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		return fail(err, "failed to query Schedule.Service dispatch")
	}

	result, err := oleutil.CallMethod(disp, "Connect")
	if err != nil {
		disp.Release()
		return fail(err, "failed to connect to task service")
	}
	result.Clear()

	c.logger.Debug("Connected to Schedule.Service")
	return &service{disp: disp, logger: c.logger}, nil
}

type service struct {
	disp     *ole.IDispatch
	logger   *logrus.Logger
	released bool
}

func (s *service) NewTask() (taskservice.Object, error) {
	v, err := oleutil.CallMethod(s.disp, "NewTask", int32(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create task definition: %w", classify(err))
	}
	return wrapVariant(v, "NewTask")
}

func (s *service) GetFolder(path string) (taskservice.Object, error) {
	v, err := oleutil.CallMethod(s.disp, "GetFolder", taskservice.CleanPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open folder %s: %w", taskservice.CleanPath(path), classify(err))
	}
	return wrapVariant(v, "GetFolder")
}

func (s *service) Release() {
	if s.released {
		return
	}
	s.released = true
	s.disp.Release()
	ole.CoUninitialize()
	runtime.UnlockOSThread()
	s.logger.Debug("Released Schedule.Service connection")
}

type object struct {
	disp *ole.IDispatch
}

func (o *object) Get(name string) (taskservice.Object, error) {
	v, err := oleutil.GetProperty(o.disp, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", name, classify(err))
	}
	return wrapVariant(v, name)
}

func (o *object) Value(name string) (interface{}, error) {
	v, err := oleutil.GetProperty(o.disp, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, classify(err))
	}
	defer v.Clear()
	return v.Value(), nil
}

func (o *object) Set(name string, value interface{}) error {
	v, err := oleutil.PutProperty(o.disp, name, argument(value))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", name, classify(err))
	}
	v.Clear()
	return nil
}

func (o *object) Call(method string, args ...interface{}) (taskservice.Object, error) {
	params := make([]interface{}, len(args))
	for i, a := range args {
		params[i] = argument(a)
	}

	v, err := oleutil.CallMethod(o.disp, method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, classify(err))
	}
	if v.VT != ole.VT_DISPATCH {
		v.Clear()
		return nil, nil
	}
	return wrapVariant(v, method)
}

func (o *object) Item(index int) (taskservice.Object, error) {
	v, err := oleutil.GetProperty(o.disp, "Item", int32(index))
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", index, classify(err))
	}
	return wrapVariant(v, "Item")
}

func (o *object) Release() {
	o.disp.Release()
}

func wrapVariant(v *ole.VARIANT, source string) (taskservice.Object, error) {
	disp := v.ToIDispatch()
	if disp == nil {
		v.Clear()
		return nil, fmt.Errorf("%s did not return an object: %w", source, taskservice.ErrInvalidConfiguration)
	}
	return &object{disp: disp}, nil
}

// argument converts values to the variant types the automation layer expects.
func argument(v interface{}) interface{} {
	switch a := v.(type) {
	case *object:
		return a.disp
	case int:
		return int32(a)
	default:
		return v
	}
}

// classify attaches an error kind to failures the service reports with a
// recognisable HRESULT. Anything else is returned as is.
func classify(err error) error {
	var oleErr *ole.OleError
	if !errors.As(err, &oleErr) {
		return err
	}

	code := uint32(oleErr.Code())
	if code == hrDispException {
		text := strings.ToLower(oleErr.Description() + " " + oleErr.Error())
		switch {
		case strings.Contains(text, "access is denied"):
			code = hrAccessDenied
		case strings.Contains(text, "cannot find the file"), strings.Contains(text, "cannot find the path"):
			code = hrFileNotFound
		case strings.Contains(text, "already exists"):
			code = hrAlreadyExists
		}
	}

	switch code {
	case hrFileNotFound, hrPathNotFound:
		return fmt.Errorf("%w: %w", taskservice.ErrNotFound, err)
	case hrAccessDenied:
		return fmt.Errorf("%w: %w", taskservice.ErrAccessDenied, err)
	case hrAlreadyExists:
		return fmt.Errorf("%w: %w", taskservice.ErrAlreadyExists, err)
	case hrServiceNotActive:
		return fmt.Errorf("%w: %w", taskservice.ErrServiceUnavailable, err)
	default:
		return err
	}
}
