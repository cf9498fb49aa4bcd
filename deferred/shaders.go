package deferred

import (
	"fmt"

	"render-engine/gpu"
)

// Built-in program names.
const (
	ProgramGeometry         = "deferred/geometry"
	ProgramLightDirectional = "deferred/light_directional"
	ProgramLightPoint       = "deferred/light_point"
	ProgramLightSpot        = "deferred/light_spot"
	ProgramShadowDepth      = "deferred/shadow_depth"
	ProgramShadowDistance   = "deferred/shadow_distance"
	ProgramSSAO             = "deferred/ssao"
	ProgramSSAOBlurX        = "deferred/ssao_blur_x"
	ProgramSSAOBlurY        = "deferred/ssao_blur_y"
	ProgramSSAOApply        = "deferred/ssao_apply"
	ProgramTonemap          = "deferred/tonemap"
	ProgramPresent          = "deferred/present"
)

// Source returns the GLSL source of a built-in program.
func Source(name string) (gpu.ProgramSource, bool) {
	src, ok := sources[name]
	return src, ok
}

// LoadProgram links the built-in program name on dev.
func LoadProgram(dev gpu.Device, name string) (*gpu.Program, error) {
	src, ok := sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in program %q", name)
	}
	return gpu.NewProgram(dev, src)
}

// lightProgramName maps a light kind to its screen-space program.
func lightProgramName(k LightKind) string {
	switch k {
	case LightPoint:
		return ProgramLightPoint
	case LightSpot:
		return ProgramLightSpot
	}
	return ProgramLightDirectional
}

// ShadowProgramName maps a light kind to the program its shadow casters are
// drawn with.
func ShadowProgramName(k LightKind) string {
	if k.ShadowTarget() == ShadowTargetCube {
		return ProgramShadowDistance
	}
	return ProgramShadowDepth
}

var sources = map[string]gpu.ProgramSource{
	ProgramGeometry:         {Name: ProgramGeometry, Vertex: meshVertSrc, Fragment: geometryFragSrc},
	ProgramLightDirectional: {Name: ProgramLightDirectional, Vertex: screenVertSrc, Fragment: lightFragSrc(LightDirectional)},
	ProgramLightPoint:       {Name: ProgramLightPoint, Vertex: screenVertSrc, Fragment: lightFragSrc(LightPoint)},
	ProgramLightSpot:        {Name: ProgramLightSpot, Vertex: screenVertSrc, Fragment: lightFragSrc(LightSpot)},
	ProgramShadowDepth:      {Name: ProgramShadowDepth, Vertex: meshVertSrc, Fragment: shadowDepthFragSrc},
	ProgramShadowDistance:   {Name: ProgramShadowDistance, Vertex: meshVertSrc, Fragment: shadowDistanceFragSrc},
	ProgramSSAO:             {Name: ProgramSSAO, Vertex: screenVertSrc, Fragment: ssaoFragSrc},
	ProgramSSAOBlurX:        {Name: ProgramSSAOBlurX, Vertex: screenVertSrc, Fragment: ssaoBlurFragSrc("vec2(1.0, 0.0)")},
	ProgramSSAOBlurY:        {Name: ProgramSSAOBlurY, Vertex: screenVertSrc, Fragment: ssaoBlurFragSrc("vec2(0.0, 1.0)")},
	ProgramSSAOApply:        {Name: ProgramSSAOApply, Vertex: screenVertSrc, Fragment: ssaoApplyFragSrc},
	ProgramTonemap:          {Name: ProgramTonemap, Vertex: screenVertSrc, Fragment: tonemapFragSrc},
	ProgramPresent:          {Name: ProgramPresent, Vertex: screenVertSrc, Fragment: presentFragSrc},
}

// ── Mesh programs ─────────────────────────────────────────────────────────────

const meshVertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;
layout(location = 3) in vec4 inColor;

uniform mat4 B_Model;
uniform mat4 B_View;
uniform mat4 B_Projection;

out vec3 vWorldPos;
out vec3 vWorldNormal;
out vec2 vUV;
out vec4 vColor;

void main() {
    vec4 world   = B_Model * vec4(inPosition, 1.0);
    vWorldPos    = world.xyz;
    vWorldNormal = mat3(transpose(inverse(B_Model))) * inNormal;
    vUV          = inUV;
    vColor       = inColor;
    gl_Position  = B_Projection * B_View * world;
}
`

// geometryFragSrc fills the G-buffer. Color gets the unlit ambient term so
// lights only have to add.
const geometryFragSrc = `
#version 410 core
in vec3 vWorldPos;
in vec3 vWorldNormal;
in vec2 vUV;
in vec4 vColor;

uniform vec4  B_Albedo;
uniform float B_Roughness;
uniform float B_Metalness;
uniform bool  B_ReceivesLighting;
uniform sampler2D B_AlbedoMap;
uniform bool  B_HasAlbedoMap;

layout(location = 0) out vec4 outColor;
layout(location = 1) out vec4 outAlbedo;
layout(location = 2) out vec4 outNormal;
layout(location = 3) out vec4 outMisc;

const vec3 AMBIENT = vec3(0.03);

void main() {
    vec4 albedo = B_Albedo * vColor;
    if (B_HasAlbedoMap) {
        albedo *= texture(B_AlbedoMap, vUV);
    }
    outAlbedo = albedo;
    outNormal = vec4(normalize(vWorldNormal), 0.0);
    outMisc   = vec4(B_ReceivesLighting ? 1.0 : 0.0, B_Roughness, B_Metalness, 1.0);
    outColor  = vec4(B_ReceivesLighting ? albedo.rgb * AMBIENT : albedo.rgb, 1.0);
}
`

const shadowDepthFragSrc = `
#version 410 core
void main() {}
`

// shadowDistanceFragSrc writes the light distance normalized by the far plane.
const shadowDistanceFragSrc = `
#version 410 core
in vec3 vWorldPos;

uniform vec3  B_LightPositionWorld;
uniform float B_LightZFar;

out vec4 outDistance;

void main() {
    float d = length(vWorldPos - B_LightPositionWorld) / B_LightZFar;
    outDistance = vec4(d, d, d, 1.0);
    gl_FragDepth = d;
}
`

// ── Screen programs ───────────────────────────────────────────────────────────

// screenVertSrc is a full-screen triangle via gl_VertexID (no VBO needed).
const screenVertSrc = `
#version 410 core
out vec2 vUV;
void main() {
    const vec2 pos[3] = vec2[3](
        vec2(-1.0, -1.0),
        vec2( 3.0, -1.0),
        vec2(-1.0,  3.0)
    );
    gl_Position = vec4(pos[gl_VertexID], 0.0, 1.0);
    vUV         = pos[gl_VertexID] * 0.5 + 0.5;
}
`

const gbufferHeader = `
#version 410 core
in vec2 vUV;

uniform sampler2D B_GTex_Albedo;
uniform sampler2D B_GTex_Normal;
uniform sampler2D B_GTex_Misc;
uniform sampler2D B_GTex_DepthStencil;
uniform sampler2D B_GTex_ColorRead;

uniform mat4 B_InvViewProjection;
uniform vec3 B_CameraPositionWorld;

vec3 worldPosition(vec2 uv) {
    float d   = texture(B_GTex_DepthStencil, uv).r * 2.0 - 1.0;
    vec4  ndc = vec4(uv * 2.0 - 1.0, d, 1.0);
    vec4  w   = B_InvViewProjection * ndc;
    return w.xyz / w.w;
}
`

func lightFragSrc(k LightKind) string {
	var shadowDecl, shadowFn, lightDir string
	switch k.ShadowTarget() {
	case ShadowTargetCube:
		shadowDecl = "uniform samplerCube B_LightShadowMapCube;"
		shadowFn = `
float shadowFactor(vec3 P, vec3 N) {
    vec3  d       = P - B_LightPositionWorld;
    float current = length(d) / B_LightZFar;
    float stored  = texture(B_LightShadowMapCube, d).r;
    return clamp(exp(-B_LightShadowExponentConstant * (current - stored - B_LightShadowBias)), 0.0, 1.0);
}`
	default:
		shadowDecl = "uniform sampler2DShadow B_LightShadowMap;"
		shadowFn = `
float shadowFactor(vec3 P, vec3 N) {
    vec4 ls = B_LightViewProj * vec4(P, 1.0);
    vec3 uv = ls.xyz / ls.w * 0.5 + 0.5;
    if (any(lessThan(uv, vec3(0.0))) || any(greaterThan(uv, vec3(1.0)))) return 1.0;
    uv.z -= B_LightShadowBias;
    if (B_LightShadowSoftness <= 0.0) return texture(B_LightShadowMap, uv);

    // 5x5 PCF grid spread over +-softness texels.
    vec2  texel = B_LightShadowSoftness / vec2(textureSize(B_LightShadowMap, 0));
    float sum   = 0.0;
    for (int y = -2; y <= 2; y++) {
        for (int x = -2; x <= 2; x++) {
            sum += texture(B_LightShadowMap, vec3(uv.xy + vec2(x, y) * 0.5 * texel, uv.z));
        }
    }
    return sum / 25.0;
}`
	}
	switch k {
	case LightDirectional:
		lightDir = `
    vec3  L     = -normalize(B_LightForwardWorld);
    float atten = 1.0;`
	case LightPoint:
		lightDir = `
    vec3  toL   = B_LightPositionWorld - P;
    float dist  = length(toL);
    vec3  L     = toL / max(dist, 1e-4);
    float atten = pow(clamp(1.0 - dist / B_LightRange, 0.0, 1.0), 2.0);`
	case LightSpot:
		lightDir = `
    vec3  toL   = B_LightPositionWorld - P;
    float dist  = length(toL);
    vec3  L     = toL / max(dist, 1e-4);
    float cone  = dot(-L, normalize(B_LightForwardWorld));
    float edge  = cos(B_LightSpotAngle);
    float atten = pow(clamp(1.0 - dist / B_LightRange, 0.0, 1.0), 2.0) *
                  smoothstep(edge, mix(edge, 1.0, 0.1), cone);`
	}
	return gbufferHeader + `
uniform bool  B_LightCastsShadows;
uniform float B_LightIntensity;
uniform vec3  B_LightColor;
uniform vec3  B_LightForwardWorld;
uniform vec3  B_LightPositionWorld;
uniform float B_LightShadowBias;
uniform float B_LightShadowSoftness;
uniform float B_LightShadowExponentConstant;
uniform float B_LightZNear;
uniform float B_LightZFar;
uniform float B_LightRange;
uniform float B_LightSpotAngle;
uniform mat4  B_LightViewProj;
` + shadowDecl + `

out vec4 outColor;
` + shadowFn + `

void main() {
    vec4 misc = texture(B_GTex_Misc, vUV);
    if (misc.x < 0.5) { outColor = vec4(0.0); return; }

    vec3 albedo = texture(B_GTex_Albedo, vUV).rgb;
    vec3 N      = normalize(texture(B_GTex_Normal, vUV).xyz);
    vec3 P      = worldPosition(vUV);
` + lightDir + `

    float NdotL = max(dot(N, L), 0.0);
    vec3  V     = normalize(B_CameraPositionWorld - P);
    vec3  H     = normalize(L + V);
    float shin  = mix(128.0, 2.0, misc.y);
    float spec  = pow(max(dot(N, H), 0.0), shin) * (1.0 - misc.y);

    float shadow = B_LightCastsShadows ? shadowFactor(P, N) : 1.0;
    vec3  radiance = B_LightColor * B_LightIntensity * atten * shadow;
    vec3  diffuse  = albedo * (1.0 - misc.z);
    vec3  specular = mix(vec3(0.04), albedo, misc.z) * spec;

    outColor = vec4((diffuse * NdotL + specular) * radiance, 0.0);
}
`
}

// ── SSAO programs ─────────────────────────────────────────────────────────────

// ssaoFragSrc estimates occlusion from view-space positions rebuilt from depth.
// Offsets are reflected about a per-pixel random axis and flipped into the
// normal's hemisphere.
const ssaoFragSrc = `
#version 410 core
in vec2 vUV;

uniform sampler2D B_GTex_Normal;
uniform sampler2D B_GTex_DepthStencil;
uniform sampler2D B_RandomAxes;

uniform mat4  B_View;
uniform mat4  B_Projection;
uniform mat4  B_InvProjection;
uniform float B_SSAOIntensity;
uniform float B_SSAORadius;
uniform vec2  B_RandomAxesUvMultiply;
uniform int   B_NumRandomOffsets;
uniform vec3  B_RandomHemisphereOffsetsArray[64];

out vec4 outOcclusion;

vec3 viewPos(vec2 uv) {
    float d  = texture(B_GTex_DepthStencil, uv).r * 2.0 - 1.0;
    vec4  vp = B_InvProjection * vec4(uv * 2.0 - 1.0, d, 1.0);
    return vp.xyz / vp.w;
}

void main() {
    if (texture(B_GTex_DepthStencil, vUV).r >= 0.9999) { outOcclusion = vec4(1.0); return; }

    vec3 P    = viewPos(vUV);
    vec3 N    = normalize(mat3(B_View) * texture(B_GTex_Normal, vUV).xyz);
    vec3 axis = normalize(texture(B_RandomAxes, vUV * B_RandomAxesUvMultiply).xyz * 2.0 - 1.0);

    float occ = 0.0;
    for (int i = 0; i < B_NumRandomOffsets; i++) {
        vec3 o = reflect(B_RandomHemisphereOffsetsArray[i], axis);
        if (dot(o, N) < 0.0) o = -o;
        vec3 S = P + o * B_SSAORadius;

        vec4 clip = B_Projection * vec4(S, 1.0);
        vec2 suv  = clip.xy / clip.w * 0.5 + 0.5;
        float geoZ = viewPos(suv).z;

        float rng = smoothstep(0.0, 1.0, B_SSAORadius / max(abs(P.z - geoZ), 1e-4));
        occ += (geoZ >= S.z + 0.02 ? 1.0 : 0.0) * rng;
    }
    float ao = 1.0 - (occ / float(max(B_NumRandomOffsets, 1))) * B_SSAOIntensity;
    outOcclusion = vec4(vec3(clamp(ao, 0.0, 1.0)), 1.0);
}
`

func ssaoBlurFragSrc(dir string) string {
	return `
#version 410 core
in vec2 vUV;

uniform sampler2D B_SSAOMap;
uniform sampler2D B_GTex_DepthStencil;
uniform float B_BlurKernel[33];
uniform int   B_BlurRadius;
uniform bool  B_BilateralEnabled;

out vec4 outOcclusion;

const vec2 DIR = ` + dir + `;

void main() {
    vec2  texel  = DIR / vec2(textureSize(B_SSAOMap, 0));
    float depth0 = texture(B_GTex_DepthStencil, vUV).r;
    float sum    = 0.0;
    float wsum   = 0.0;
    for (int i = -B_BlurRadius; i <= B_BlurRadius; i++) {
        vec2  uv = vUV + float(i) * texel;
        float w  = B_BlurKernel[i + B_BlurRadius];
        if (B_BilateralEnabled) {
            float dz = abs(texture(B_GTex_DepthStencil, uv).r - depth0);
            w *= exp(-dz * 1000.0);
        }
        sum  += texture(B_SSAOMap, uv).r * w;
        wsum += w;
    }
    float ao = sum / max(wsum, 1e-6);
    outOcclusion = vec4(ao, ao, ao, 1.0);
}
`
}

const ssaoApplyFragSrc = `
#version 410 core
in vec2 vUV;

uniform sampler2D B_GTex_ColorRead;
uniform sampler2D B_GTex_Misc;
uniform sampler2D B_SSAOMap;

out vec4 outColor;

void main() {
    vec4  color = texture(B_GTex_ColorRead, vUV);
    float ao    = texture(B_SSAOMap, vUV).r;
    if (texture(B_GTex_Misc, vUV).x < 0.5) ao = 1.0;
    outColor = vec4(color.rgb * ao, color.a);
}
`

// ── Post-process programs ─────────────────────────────────────────────────────

// tonemapFragSrc applies exposure, exponential Reinhard and gamma 2.2.
const tonemapFragSrc = `
#version 410 core
in vec2 vUV;

uniform sampler2D B_GTex_ColorRead;
uniform float B_Exposure;
uniform float B_Gamma;

out vec4 outColor;

void main() {
    vec3 hdr    = texture(B_GTex_ColorRead, vUV).rgb;
    vec3 mapped = vec3(1.0) - exp(-hdr * B_Exposure);
    mapped = pow(mapped, vec3(1.0 / B_Gamma));
    outColor = vec4(mapped, 1.0);
}
`

const presentFragSrc = `
#version 410 core
in vec2 vUV;

uniform sampler2D B_GTex_Color;

out vec4 outColor;

void main() {
    outColor = texture(B_GTex_Color, vUV);
}
`
