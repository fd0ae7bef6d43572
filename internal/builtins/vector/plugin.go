package vector

import (
	"math"

	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/runtime"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

const (
	pitch = 0
	yaw   = 1
	roll  = 2
)

func init() {
	runtime.Register(runtime.Spec{Name: "makevectors", Index: 1, Handler: runMakevectors})
	runtime.Register(runtime.Spec{Name: "normalize", Index: 9, Handler: runNormalize})
	runtime.Register(runtime.Spec{Name: "vlen", Index: 12, Handler: runVlen})
	runtime.Register(runtime.Spec{Name: "vectoyaw", Index: 13, Handler: runVectoyaw})
	runtime.Register(runtime.Spec{Name: "vectoangles", Index: 51, Handler: runVectoangles})
}

// AngleVectors converts pitch/yaw/roll degrees to forward, right and up
// unit vectors.
func AngleVectors(angles vm.Vec3) (forward, right, up vm.Vec3) {
	a := float64(angles[yaw]) * (math.Pi * 2 / 360)
	sy, cy := math.Sin(a), math.Cos(a)
	a = float64(angles[pitch]) * (math.Pi * 2 / 360)
	sp, cp := math.Sin(a), math.Cos(a)
	a = float64(angles[roll]) * (math.Pi * 2 / 360)
	sr, cr := math.Sin(a), math.Cos(a)

	forward = vm.Vec3{float32(cp * cy), float32(cp * sy), float32(-sp)}
	right = vm.Vec3{
		float32(-1*sr*sp*cy + -1*cr*-sy),
		float32(-1*sr*sp*sy + -1*cr*cy),
		float32(-1 * sr * cp),
	}
	up = vm.Vec3{
		float32(cr*sp*cy + -sr*-sy),
		float32(cr*sp*sy + -sr*cy),
		float32(cr * cp),
	}
	return forward, right, up
}

func length(v vm.Vec3) float64 {
	x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
	return math.Sqrt(x*x + y*y + z*z)
}

func runMakevectors(m *vm.Machine) error {
	forward, right, up := AngleVectors(m.ParmVector(0))
	g := m.Globals()
	g.SetVector(progs.GlobalVForward, forward)
	g.SetVector(progs.GlobalVRight, right)
	g.SetVector(progs.GlobalVUp, up)
	return nil
}

func runNormalize(m *vm.Machine) error {
	v := m.ParmVector(0)
	l := length(v)
	if l == 0 {
		m.ReturnVector(vm.Vec3{})
		return nil
	}
	inv := 1 / l
	m.ReturnVector(vm.Vec3{float32(float64(v[0]) * inv), float32(float64(v[1]) * inv), float32(float64(v[2]) * inv)})
	return nil
}

func runVlen(m *vm.Machine) error {
	m.ReturnFloat(float32(length(m.ParmVector(0))))
	return nil
}

func yawOf(x, y float32) float32 {
	if x == 0 && y == 0 {
		return 0
	}
	deg := float32(int(math.Atan2(float64(y), float64(x)) * 180 / math.Pi))
	if deg < 0 {
		deg += 360
	}
	return deg
}

func runVectoyaw(m *vm.Machine) error {
	v := m.ParmVector(0)
	m.ReturnFloat(yawOf(v[0], v[1]))
	return nil
}

func runVectoangles(m *vm.Machine) error {
	v := m.ParmVector(0)
	var p float32
	if v[0] == 0 && v[1] == 0 {
		if v[2] > 0 {
			p = 90
		} else {
			p = 270
		}
	} else {
		forward := math.Sqrt(float64(v[0])*float64(v[0]) + float64(v[1])*float64(v[1]))
		p = float32(int(math.Atan2(float64(v[2]), forward) * 180 / math.Pi))
		if p < 0 {
			p += 360
		}
	}
	m.ReturnVector(vm.Vec3{p, yawOf(v[0], v[1]), 0})
	return nil
}
