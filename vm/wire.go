package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Wire format: canonical CBOR program images
// ---------------------------------------------------------------------------
//
// A compiled program serializes to a deterministic CBOR image so that
// identical sources produce identical bytes, making images
// content-addressable by SHA-256.

// ImageVersion is the current image format version.
const ImageVersion uint16 = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireConstant is the serializable form of a pool constant. Only
// primitive constants appear in pools.
type wireConstant struct {
	Kind uint8   `cbor:"k"`
	Num  float64 `cbor:"n,omitempty"`
	Str  string  `cbor:"s,omitempty"`
}

// wireChunk is the serializable form of a chunk.
type wireChunk struct {
	Name       string              `cbor:"name"`
	Code       []byte              `cbor:"code"`
	Constants  []wireConstant      `cbor:"consts"`
	ParamCount int                 `cbor:"params"`
	ParamNames []string            `cbor:"paramNames,omitempty"`
	LocalCount int                 `cbor:"locals"`
	Handlers   []HandlerEntry      `cbor:"handlers,omitempty"`
	AwaitSites int                 `cbor:"awaits,omitempty"`
	Captures   []CaptureDescriptor `cbor:"captures,omitempty"`
	IsAsync    bool                `cbor:"async,omitempty"`
}

// wireMethod references a chunk by image index. Index -1 marks
// abstract members and builtins.
type wireMethod struct {
	Name       string `cbor:"name"`
	Kind       uint8  `cbor:"kind"`
	Chunk      int    `cbor:"chunk"`
	IsAbstract bool   `cbor:"abstract,omitempty"`
	IsAsync    bool   `cbor:"async,omitempty"`
	IsOverride bool   `cbor:"override,omitempty"`
}

// wireField references a static initializer chunk, or -1.
type wireField struct {
	Name string `cbor:"name"`
	Init int    `cbor:"init"`
}

// wireClass is the serializable form of a class.
type wireClass struct {
	Name         string        `cbor:"name"`
	Superclass   string        `cbor:"super,omitempty"`
	IsAbstract   bool          `cbor:"abstract,omitempty"`
	Generics     []GenericInfo `cbor:"generics,omitempty"`
	Fields       []wireField   `cbor:"fields,omitempty"`
	StaticFields []wireField   `cbor:"staticFields,omitempty"`
	Constructor  *wireMethod   `cbor:"ctor,omitempty"`
	Methods      []wireMethod  `cbor:"methods,omitempty"`
	Getters      []wireMethod  `cbor:"getters,omitempty"`
	Setters      []wireMethod  `cbor:"setters,omitempty"`
	Statics      []wireMethod  `cbor:"statics,omitempty"`
}

// wireImage is a complete serialized program.
type wireImage struct {
	Version   uint16      `cbor:"version"`
	Chunks    []wireChunk `cbor:"chunks"`
	FnTable   []int       `cbor:"fnTable,omitempty"`
	Classes   []wireClass `cbor:"classes,omitempty"`
	Functions []struct {
		Name  string `cbor:"name"`
		Chunk int    `cbor:"chunk"`
	} `cbor:"functions,omitempty"`
	Script int `cbor:"script"`
}

// imageBuilder assigns dense indexes to chunks during encoding.
type imageBuilder struct {
	chunks  []wireChunk
	indexOf map[*Chunk]int
}

func (b *imageBuilder) add(c *Chunk) int {
	if c == nil {
		return -1
	}
	if idx, ok := b.indexOf[c]; ok {
		return idx
	}
	idx := len(b.chunks)
	b.indexOf[c] = idx
	b.chunks = append(b.chunks, encodeChunk(c))
	return idx
}

func encodeChunk(c *Chunk) wireChunk {
	wc := wireChunk{
		Name:       c.Name,
		Code:       c.Code,
		ParamCount: c.ParamCount,
		ParamNames: c.ParamNames,
		LocalCount: c.LocalCount,
		Handlers:   c.Handlers,
		AwaitSites: c.AwaitSites,
		Captures:   c.CaptureInfo,
		IsAsync:    c.IsAsync,
	}
	for _, v := range c.Constants {
		wc.Constants = append(wc.Constants, wireConstant{
			Kind: uint8(v.Kind),
			Num:  v.Num,
			Str:  v.Str,
		})
	}
	return wc
}

func decodeChunk(wc wireChunk) *Chunk {
	c := &Chunk{
		Version:     BytecodeVersion,
		Name:        wc.Name,
		Code:        wc.Code,
		ParamCount:  wc.ParamCount,
		ParamNames:  wc.ParamNames,
		LocalCount:  wc.LocalCount,
		Handlers:    wc.Handlers,
		AwaitSites:  wc.AwaitSites,
		CaptureInfo: wc.Captures,
		IsAsync:     wc.IsAsync,
	}
	for _, wk := range wc.Constants {
		c.Constants = append(c.Constants, Value{
			Kind: ValueKind(wk.Kind),
			Num:  wk.Num,
			Str:  wk.Str,
		})
	}
	return c
}

func encodeMethod(b *imageBuilder, m *Method) wireMethod {
	return wireMethod{
		Name:       m.Name,
		Kind:       uint8(m.Kind),
		Chunk:      b.add(m.Chunk),
		IsAbstract: m.IsAbstract,
		IsAsync:    m.IsAsync,
		IsOverride: m.IsOverride,
	}
}

// MarshalImage serializes a program to canonical CBOR.
func MarshalImage(p *Program) ([]byte, error) {
	b := &imageBuilder{indexOf: map[*Chunk]int{}}
	img := wireImage{Version: ImageVersion, Script: -1}

	for _, name := range p.Classes.Names() {
		cls := p.Classes.Lookup(name)
		wc := wireClass{
			Name:       cls.Name,
			IsAbstract: cls.IsAbstract,
			Generics:   cls.Generics,
		}
		if cls.Superclass != nil {
			wc.Superclass = cls.Superclass.Name
		}
		for _, f := range cls.Fields {
			wc.Fields = append(wc.Fields, wireField{Name: f.Name, Init: -1})
		}
		for _, f := range cls.StaticFields {
			wc.StaticFields = append(wc.StaticFields, wireField{Name: f.Name, Init: b.add(f.Init)})
		}
		if cls.Constructor != nil && cls.Constructor.Builtin == nil {
			wm := encodeMethod(b, cls.Constructor)
			wc.Constructor = &wm
		}
		for _, name := range sortedMethodNames(cls.Methods) {
			wc.Methods = append(wc.Methods, encodeMethod(b, cls.Methods[name]))
		}
		for _, name := range sortedMethodNames(cls.Getters) {
			wc.Getters = append(wc.Getters, encodeMethod(b, cls.Getters[name]))
		}
		for _, name := range sortedMethodNames(cls.Setters) {
			wc.Setters = append(wc.Setters, encodeMethod(b, cls.Setters[name]))
		}
		for _, name := range sortedMethodNames(cls.StaticMethods) {
			wc.Statics = append(wc.Statics, encodeMethod(b, cls.StaticMethods[name]))
		}
		img.Classes = append(img.Classes, wc)
	}

	for _, fn := range p.FnTable {
		img.FnTable = append(img.FnTable, b.add(fn))
	}

	for _, name := range sortedGlobalFunctions(p) {
		fn := p.Globals[name].AsClosure()
		img.Functions = append(img.Functions, struct {
			Name  string `cbor:"name"`
			Chunk int    `cbor:"chunk"`
		}{Name: name, Chunk: b.add(fn.Chunk)})
	}

	if p.Script != nil {
		img.Script = b.add(p.Script)
	}

	img.Chunks = b.chunks
	return cborEncMode.Marshal(&img)
}

// UnmarshalImage reconstructs a runnable program from image bytes.
func UnmarshalImage(data []byte) (*Program, error) {
	var img wireImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("vm: unsupported image version %d", img.Version)
	}

	chunks := make([]*Chunk, len(img.Chunks))
	for i, wc := range img.Chunks {
		chunks[i] = decodeChunk(wc)
	}
	chunkAt := func(i int) *Chunk {
		if i < 0 || i >= len(chunks) {
			return nil
		}
		return chunks[i]
	}

	p := NewProgram()

	for _, wc := range img.Classes {
		cls := p.Classes.Declare(wc.Name)
		cls.IsAbstract = wc.IsAbstract
		cls.Generics = wc.Generics
	}
	for _, wc := range img.Classes {
		cls := p.Classes.Lookup(wc.Name)
		if wc.Superclass != "" {
			cls.Superclass = p.Classes.Lookup(wc.Superclass)
		}
		for _, f := range wc.Fields {
			cls.Fields = append(cls.Fields, FieldInfo{Name: f.Name})
		}
		for _, f := range wc.StaticFields {
			cls.StaticFields = append(cls.StaticFields, FieldInfo{Name: f.Name, Init: chunkAt(f.Init)})
		}
		decode := func(wm wireMethod) *Method {
			return &Method{
				Name:       wm.Name,
				Kind:       MethodKind(wm.Kind),
				Chunk:      chunkAt(wm.Chunk),
				IsAbstract: wm.IsAbstract,
				IsAsync:    wm.IsAsync,
				IsOverride: wm.IsOverride,
				Owner:      cls,
			}
		}
		if wc.Constructor != nil {
			cls.Constructor = decode(*wc.Constructor)
		}
		for _, wm := range wc.Methods {
			cls.Methods[wm.Name] = decode(wm)
		}
		for _, wm := range wc.Getters {
			cls.Getters[wm.Name] = decode(wm)
		}
		for _, wm := range wc.Setters {
			cls.Setters[wm.Name] = decode(wm)
		}
		for _, wm := range wc.Statics {
			cls.StaticMethods[wm.Name] = decode(wm)
		}
		p.Globals[wc.Name] = ObjectValue(cls)
	}

	for _, idx := range img.FnTable {
		p.FnTable = append(p.FnTable, chunkAt(idx))
	}
	for _, fn := range img.Functions {
		p.Globals[fn.Name] = ObjectValue(&Closure{Chunk: chunkAt(fn.Chunk), Name: fn.Name})
	}
	p.Script = chunkAt(img.Script)

	return p, nil
}

// ImageHash returns the hex SHA-256 digest of image bytes, the
// content address of a compiled program.
func ImageHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedMethodNames(methods map[string]*Method) []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedGlobalFunctions returns names of globals that are compiled
// top-level functions, deterministically ordered.
func sortedGlobalFunctions(p *Program) []string {
	var names []string
	for name, v := range p.Globals {
		if fn := v.AsClosure(); fn != nil && fn.Chunk != nil && fn.Builtin == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
