package vcall

import (
	"hwarb-go/errcode"
	"hwarb-go/types"
)

// FetchModule asks c for the module record of (class, instance).
func FetchModule(c Caller, class types.Class, instance uint8) (*types.ModuleRecord, error) {
	var r Result
	c.Call(OpFetchModule, uint(class), uint(instance), 0, &r)
	if err := r.Status.Err(); err != nil {
		return nil, errcode.Wrap(errcode.Of(err), OpFetchModule.String(), types.HWDev(class, instance).String())
	}
	m, ok := r.P.(*types.ModuleRecord)
	if !ok || m == nil {
		return nil, errcode.Wrap(errcode.Internal, OpFetchModule.String(), "success without a module record")
	}
	return m, nil
}

// FetchSwdev asks c for the software device bound to id.
func FetchSwdev(c Caller, id types.SWDevID) (*types.SoftwareDeviceRecord, error) {
	var r Result
	c.Call(OpFetchSwdev, uint(id), 0, 0, &r)
	if err := r.Status.Err(); err != nil {
		return nil, errcode.Wrap(errcode.Of(err), OpFetchSwdev.String(), id.String())
	}
	s, ok := r.P.(*types.SoftwareDeviceRecord)
	if !ok || s == nil {
		return nil, errcode.Wrap(errcode.Internal, OpFetchSwdev.String(), "success without a device record")
	}
	return s, nil
}

// FetchPlatform asks c for the board-wide properties.
func FetchPlatform(c Caller) (*types.Platform, error) {
	var r Result
	c.Call(OpFetchPlatform, 0, 0, 0, &r)
	if err := r.Status.Err(); err != nil {
		return nil, errcode.Wrap(errcode.Of(err), OpFetchPlatform.String(), "")
	}
	p, ok := r.P.(*types.Platform)
	if !ok || p == nil {
		return nil, errcode.Wrap(errcode.Internal, OpFetchPlatform.String(), "success without a platform record")
	}
	return p, nil
}
